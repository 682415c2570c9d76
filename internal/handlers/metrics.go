package handlers

import (
	"net/http"
	"time"

	"media-worker/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type promErrorLog struct{}

func (promErrorLog) Println(v ...interface{}) {
	logging.Warn("metrics scrape: %v", v)
}

// MetricsHandler serves the default registry in the OpenMetrics format when
// the scraper asks for it. Concurrent scrapes are capped so a misconfigured
// scraper cannot pile up gathers.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:            promErrorLog{},
			ErrorHandling:       promhttp.ContinueOnError,
			EnableOpenMetrics:   true,
			MaxRequestsInFlight: 4,
			Timeout:             10 * time.Second,
		}))
}
