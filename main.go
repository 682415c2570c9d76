package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-worker/internal/engine"
	"media-worker/internal/handlers"
	"media-worker/internal/logging"
	"media-worker/internal/media"
	"media-worker/internal/memory"
	"media-worker/internal/metrics"
	"media-worker/internal/middleware"
	"media-worker/internal/startup"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

const (
	metricsInterval = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	logMemoryConfig(memResult)

	lock, err := startup.AcquireInstanceLock(config.CacheDir)
	if err != nil {
		startup.LogFatal("Instance lock: %v", err)
	}

	vipsOK := true
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips init failed: %v", err)
		vipsOK = false
	}

	engineStart := time.Now()
	eng, err := engine.New(context.Background(), config.Engine)
	if err != nil {
		_ = lock.Release()
		startup.LogFatal("Failed to initialize engine: %v", err)
	}
	startup.LogEngineInit(time.Since(engineStart), eng.FFmpegAvailable(), vipsOK)

	eng.Start(context.Background())

	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(eng, metricsInterval)
		collector.Start()
	}

	h := handlers.New(eng)
	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Sync job submissions hold the connection for the whole job.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go handleShutdown(srv, h, eng, collector, lock, done)

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		IdleEnabled:     config.Engine.Idle.Enabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	if config.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	h.Register(r, config.MetricsEnabled)
	return r
}

func logMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  GOMEMLIMIT not set (set MEMORY_LIMIT or GOMEMLIMIT to enable throttling)")
		return
	}
	logging.Info("  Source:      %s", result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container:   %s (ratio %.2f)", humanize.IBytes(uint64(result.ContainerLimit)), result.Ratio)
	}
	logging.Info("  GOMEMLIMIT:  %s", humanize.IBytes(uint64(result.GoMemLimit)))
}

func handleShutdown(srv *http.Server, h *handlers.Handlers, eng *engine.Engine, collector *metrics.Collector, lock *startup.InstanceLock, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	h.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if collector != nil {
		collector.Stop()
	}

	startup.LogShutdownStep("Stopping engine")
	if err := eng.Shutdown(ctx); err != nil {
		logging.Warn("Engine shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Engine stopped, running jobs canceled")
	}

	media.ShutdownVips()

	if err := lock.Release(); err != nil {
		logging.Warn("Failed to release instance lock: %v", err)
	}
	startup.LogShutdownComplete()
}
