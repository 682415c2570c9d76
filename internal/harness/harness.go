package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"media-worker/internal/jobs"
	"media-worker/internal/keylock"
	"media-worker/internal/limiter"
	"media-worker/internal/logging"
	"media-worker/internal/metrics"
	"media-worker/internal/procs"
)

// ErrShuttingDown is returned for submissions after Shutdown has begun.
var ErrShuttingDown = errors.New("harness is shutting down")

// Func is a unit of artifact work. Its return value becomes the job result.
type Func func(jc *JobContext) (any, error)

// Result is the outcome of a synchronous Wrap.
type Result struct {
	JobID   string
	Skipped bool
	Value   any
}

// Submission is the outcome of a background submission.
type Submission struct {
	JobID   string `json:"job_id"`
	Skipped bool   `json:"skipped"`
}

// Config holds harness timing.
type Config struct {
	HeartbeatInterval time.Duration
}

// DefaultConfig returns a 5 second heartbeat.
func DefaultConfig() Config {
	return Config{HeartbeatInterval: 5 * time.Second}
}

// Harness runs work functions inside the job lifecycle: per-file dedup,
// limiter slot, heartbeat, progress and a terminal state.
type Harness struct {
	jobs    *jobs.Registry
	locks   *keylock.Table
	limiter *limiter.Limiter
	procs   *procs.Registry

	heartbeat time.Duration

	// submitMu makes the dedup check, job creation and lock acquisition atomic.
	submitMu sync.Mutex
	closed   bool

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	baseCtx  context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a harness over shared instances.
func New(cfg Config, reg *jobs.Registry, locks *keylock.Table, lim *limiter.Limiter, pr *procs.Registry) *Harness {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	base, stop := context.WithCancel(context.Background())
	return &Harness{
		jobs:      reg,
		locks:     locks,
		limiter:   lim,
		procs:     pr,
		heartbeat: cfg.HeartbeatInterval,
		cancels:   make(map[string]context.CancelFunc),
		baseCtx:   base,
		stopBase:  stop,
	}
}

// Wrap runs fn synchronously in the caller's goroutine. A live job on the
// same key yields Result{Skipped: true} without running fn. A failed job
// returns its error.
func (h *Harness) Wrap(ctx context.Context, kind, target string, fn Func) (Result, error) {
	sub, jobCtx, err := h.submit(ctx, kind, target)
	if err != nil {
		return Result{}, err
	}
	if sub.Skipped {
		return Result{JobID: sub.JobID, Skipped: true}, nil
	}

	value, err := h.execute(jobCtx, sub.JobID, kind, keylock.Normalize(target), fn)
	return Result{JobID: sub.JobID, Value: value}, err
}

// WrapBackground submits fn and returns immediately. Failures are recorded on
// the job and never reach the caller.
func (h *Harness) WrapBackground(kind, target string, fn Func) (Submission, error) {
	sub, jobCtx, err := h.submit(h.baseCtx, kind, target)
	if err != nil || sub.Skipped {
		return sub, err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_, _ = h.execute(jobCtx, sub.JobID, kind, keylock.Normalize(target), fn)
	}()
	return sub, nil
}

func (h *Harness) submit(parent context.Context, kind, target string) (Submission, context.Context, error) {
	target = keylock.Normalize(target)
	key := keylock.NewKey(kind, target)

	h.submitMu.Lock()
	defer h.submitMu.Unlock()

	if h.closed {
		return Submission{}, nil, ErrShuttingDown
	}

	if id, ok := h.jobs.FindActive(kind, target); ok {
		metrics.JobSubmissionsTotal.WithLabelValues(kind, "skipped").Inc()
		logging.Debug("Skipping duplicate %s for %s, job %s is active", kind, target, id)
		return Submission{JobID: id, Skipped: true}, nil, nil
	}

	id := h.jobs.New(kind, target)
	if holder, ok := h.locks.TryAcquire(key, id); !ok {
		// A holder outside the registry's view; fold into it rather than run twice.
		h.jobs.Transition(id, jobs.StateCanceled, nil, fmt.Errorf("key %s held by %s", key, holder))
		metrics.JobSubmissionsTotal.WithLabelValues(kind, "skipped").Inc()
		return Submission{JobID: holder, Skipped: true}, nil, nil
	}

	jobCtx, cancel := context.WithCancel(parent)
	h.mu.Lock()
	h.cancels[id] = cancel
	h.mu.Unlock()

	metrics.JobSubmissionsTotal.WithLabelValues(kind, "created").Inc()
	return Submission{JobID: id}, jobCtx, nil
}

// execute drives one job from queued to a terminal state. The lock, the
// limiter slot and the cancel func are released on every path.
func (h *Harness) execute(ctx context.Context, id, kind, target string, fn Func) (value any, err error) {
	key := keylock.NewKey(kind, target)
	log := logging.ForJob(id, kind)
	queuedAt := time.Now()

	defer func() {
		h.mu.Lock()
		if cancel, ok := h.cancels[id]; ok {
			cancel()
			delete(h.cancels, id)
		}
		h.mu.Unlock()
		h.locks.Release(key, id)
	}()

	if err := h.limiter.Acquire(ctx); err != nil {
		if _, recorded := h.finish(id, kind, nil, err, queuedAt); !recorded {
			return nil, h.terminalError(id)
		}
		return nil, err
	}
	defer h.limiter.Release()

	if !h.jobs.Transition(id, jobs.StateRunning, nil, nil) {
		// Canceled or reaped while queued.
		return nil, h.terminalError(id)
	}
	startedAt := time.Now()
	metrics.JobQueueWait.WithLabelValues(kind).Observe(startedAt.Sub(queuedAt).Seconds())
	log.Debug("started %s", target)

	stopHeartbeat := h.startHeartbeat(id)
	defer stopHeartbeat()

	jc := &JobContext{id: id, kind: kind, target: target, jobs: h.jobs, log: log}
	jc.ctx = procs.WithJob(context.WithValue(ctx, jobContextKey{}, jc), id)

	value, err = call(fn, jc)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	state, recorded := h.finish(id, kind, value, err, startedAt)
	if !recorded {
		err = h.terminalError(id)
	}

	switch state {
	case jobs.StateDone:
		log.Debug("done %s in %v", target, time.Since(startedAt).Round(time.Millisecond))
		return value, nil
	case jobs.StateCanceled:
		log.Info("canceled %s", target)
	default:
		log.Warn("failed %s: %v", target, err)
	}
	return nil, err
}

// finish records the terminal state implied by err and returns the state the
// job ended in. recorded is false when something else (a cancel request or the
// reaper) finished the job first.
func (h *Harness) finish(id, kind string, value any, err error, since time.Time) (state jobs.State, recorded bool) {
	state = jobs.StateDone
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		state = jobs.StateCanceled
	default:
		state = jobs.StateFailed
	}

	if h.jobs.Transition(id, state, value, err) {
		metrics.JobsFinishedTotal.WithLabelValues(kind, string(state)).Inc()
		metrics.JobDuration.WithLabelValues(kind).Observe(time.Since(since).Seconds())
		return state, true
	}
	if j, ok := h.jobs.Get(id); ok {
		return j.State, false
	}
	return state, false
}

func (h *Harness) terminalError(id string) error {
	j, ok := h.jobs.Get(id)
	if !ok {
		return jobs.ErrNotFound
	}
	switch {
	case j.State == jobs.StateCanceled:
		return context.Canceled
	case j.Error != "":
		return errors.New(j.Error)
	default:
		return fmt.Errorf("job %s ended %s", id, j.State)
	}
}

// call runs fn, converting a panic into an error.
func call(fn Func, jc *JobContext) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			jc.log.Error("panic: %v\n%s", r, debug.Stack())
			value, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(jc)
}

func (h *Harness) startHeartbeat(id string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.jobs.Heartbeat(id)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// Cancel cancels a queued or running job and kills its subprocesses. It
// returns false when the job is unknown or already finished.
func (h *Harness) Cancel(id string) bool {
	if !h.CancelToken(id) {
		return false
	}
	h.procs.Kill(id)
	// A queued job may sit behind the limiter for a while; record the outcome
	// now. Running jobs finish through execute once their function returns.
	if j, ok := h.jobs.Get(id); ok && j.State == jobs.StateQueued {
		if h.jobs.Transition(id, jobs.StateCanceled, nil, context.Canceled) {
			metrics.JobsFinishedTotal.WithLabelValues(j.Kind, string(jobs.StateCanceled)).Inc()
		}
	}
	return true
}

// CancelToken cancels the job's context without touching its state.
func (h *Harness) CancelToken(id string) bool {
	h.mu.Lock()
	cancel, ok := h.cancels[id]
	h.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown stops accepting work, cancels every job and waits for background
// jobs to return or ctx to expire.
func (h *Harness) Shutdown(ctx context.Context) error {
	h.submitMu.Lock()
	h.closed = true
	h.submitMu.Unlock()

	h.stopBase()
	h.mu.Lock()
	for _, cancel := range h.cancels {
		cancel()
	}
	h.mu.Unlock()
	if n := h.procs.KillAll(); n > 0 {
		logging.Info("Killed %d subprocess(es) during shutdown", n)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
