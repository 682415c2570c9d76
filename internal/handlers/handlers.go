package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"media-worker/internal/artifacts"
	"media-worker/internal/coverage"
	"media-worker/internal/dupes"
	"media-worker/internal/harness"
	"media-worker/internal/idle"
	"media-worker/internal/jobs"
	"media-worker/internal/metrics"
)

// Engine is the part of the artifact engine the API drives.
type Engine interface {
	Submit(kind, target string, p artifacts.Params) (harness.Submission, error)
	Generate(ctx context.Context, kind, target string, p artifacts.Params) (harness.Result, error)
	ListJobs(filter jobs.Filter) []jobs.Job
	Job(id string) (jobs.Job, error)
	Cancel(id string) error
	ArtifactFiles(kind, target string) ([]string, error)
	Duplicates(ctx context.Context, scope string, recursive bool, opts dupes.Options) (dupes.Report, error)
	Coverage(ctx context.Context, base string, kinds []string) (map[string][]string, []coverage.Count, error)
	IdleStatus() idle.Status
	FFmpegAvailable() bool
	GetStats() metrics.Stats
}

// Handlers serves the job API over one engine.
type Handlers struct {
	engine  Engine
	started time.Time
	ready   atomic.Bool
}

// New creates handlers. The service reports not ready until SetReady(true).
func New(e Engine) *Handlers {
	return &Handlers{engine: e, started: time.Now()}
}

// SetReady flips the readiness probe, e.g. off at shutdown.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
