package harness

import (
	"context"

	"media-worker/internal/jobs"
	"media-worker/internal/logging"
)

// JobContext is the handle a work function uses to report progress and
// observe cancellation without threading the job id through its helpers.
type JobContext struct {
	id     string
	kind   string
	target string
	ctx    context.Context
	jobs   *jobs.Registry
	log    logging.JobLogger
}

type jobContextKey struct{}

// FromContext returns the JobContext carried by ctx.
func FromContext(ctx context.Context) (*JobContext, bool) {
	jc, ok := ctx.Value(jobContextKey{}).(*JobContext)
	return jc, ok
}

// ID returns the job id.
func (c *JobContext) ID() string { return c.id }

// Kind returns the artifact kind.
func (c *JobContext) Kind() string { return c.kind }

// Target returns the normalized library-relative path.
func (c *JobContext) Target() string { return c.target }

// Context returns the job's cancellation context. It carries the JobContext
// itself and the job id used to register subprocesses.
func (c *JobContext) Context() context.Context { return c.ctx }

// Log returns a logger prefixed with the job id.
func (c *JobContext) Log() logging.JobLogger { return c.log }

// SetTotal sets the number of work units.
func (c *JobContext) SetTotal(n int64) {
	c.jobs.SetProgress(c.id, jobs.Progress{Total: &n})
}

// Add advances the processed count by n.
func (c *JobContext) Add(n int64) {
	c.jobs.SetProgress(c.id, jobs.Progress{Add: n})
}

// SetProcessed sets the processed count.
func (c *JobContext) SetProcessed(n int64) {
	c.jobs.SetProgress(c.id, jobs.Progress{Processed: &n})
}

// Checkpoint returns a non-nil error once the job has been canceled. CPU-bound
// loops call it between units of work.
func (c *JobContext) Checkpoint() error {
	return c.ctx.Err()
}
