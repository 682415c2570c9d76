package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-worker/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	FFmpeg  bool   `json:"ffmpeg"`

	// Engine state
	Jobs            map[string]int `json:"jobs"`
	WorkersInUse    int            `json:"workersInUse"`
	WorkersWaiting  int            `json:"workersWaiting"`
	WorkerCapacity  int            `json:"workerCapacity"`
	Subprocesses    int            `json:"subprocesses"`
	HashIndexSize   int            `json:"hashIndexSize"`
	IdleAccumulated string         `json:"idleAccumulated,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A missing ffmpeg
// degrades the service but keeps it up; phash lookups and the API still work.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.engine.GetStats()
	ready := h.ready.Load()
	ffmpeg := h.engine.FFmpegAvailable()

	response := HealthResponse{
		Ready:          ready,
		Version:        startup.Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		FFmpeg:         ffmpeg,
		Jobs:           stats.JobsByState,
		WorkersInUse:   stats.LimiterInUse,
		WorkersWaiting: stats.LimiterWaiting,
		WorkerCapacity: stats.LimiterCapacity,
		Subprocesses:   stats.Subprocesses,
		HashIndexSize:  stats.HashEntries,
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}
	if idle := h.engine.IdleStatus(); idle.Enabled {
		response.IdleAccumulated = idle.Accumulated
	}

	switch {
	case !ready:
		response.Status = statusStarting
	case !ffmpeg:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept jobs
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
