package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts every route on r.
func (h *Handlers) Register(r *mux.Router, metricsEnabled bool) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.SubmitJob).Methods(http.MethodPost).Name("submit-job")
	api.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet).Name("list-jobs")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet).Name("get-job")
	api.HandleFunc("/jobs/{id}", h.CancelJob).Methods(http.MethodDelete).Name("cancel-job")
	api.HandleFunc("/duplicates", h.GetDuplicates).Methods(http.MethodGet).Name("duplicates")
	api.HandleFunc("/coverage", h.GetCoverage).Methods(http.MethodGet).Name("coverage")
	api.HandleFunc("/scheduler", h.GetScheduler).Methods(http.MethodGet).Name("scheduler")
	api.HandleFunc("/artifacts/{kind}/{path:.+}", h.GetArtifact).Methods(http.MethodGet, http.MethodHead).Name("artifact")
}
