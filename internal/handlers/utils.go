package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"media-worker/internal/artifacts"
	"media-worker/internal/engine"
	"media-worker/internal/harness"
	"media-worker/internal/jobs"
	"media-worker/internal/logging"
	"media-worker/internal/middleware"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v as JSON with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// setJobID exposes the job a response refers to to the access log.
func setJobID(w http.ResponseWriter, id string) {
	if id != "" {
		w.Header().Set(middleware.JobIDHeader, id)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	writeJSONError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, artifacts.ErrUnsupportedKind),
		errors.Is(err, artifacts.ErrInvalidParams),
		errors.Is(err, engine.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, harness.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
