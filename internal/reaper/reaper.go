// Package reaper fails running jobs whose heartbeat has gone stale and kills
// whatever subprocesses they left behind.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-worker/internal/jobs"
	"media-worker/internal/keylock"
	"media-worker/internal/logging"
	"media-worker/internal/metrics"
	"media-worker/internal/procs"
)

// ErrOrphaned is recorded on jobs the reaper fails.
var ErrOrphaned = errors.New("orphaned: no heartbeat")

// Canceler cancels a job's context without changing its state.
type Canceler interface {
	CancelToken(id string) bool
}

// Config holds the sweep cadence and staleness thresholds.
type Config struct {
	Interval time.Duration
	// MaxIdle is the heartbeat age beyond which a running job is orphaned.
	MaxIdle time.Duration
	// MinAge protects jobs that have not yet had a chance to heartbeat.
	MinAge time.Duration
}

// DefaultConfig returns a 30s sweep, 2m max idle and 30s min age.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		MaxIdle:  2 * time.Minute,
		MinAge:   30 * time.Second,
	}
}

// Reaper sweeps the registry for orphaned jobs.
type Reaper struct {
	cfg    Config
	jobs   *jobs.Registry
	locks  *keylock.Table
	procs  *procs.Registry
	cancel Canceler
	now    func() time.Time
}

// New creates a reaper. cancel may be nil.
func New(cfg Config, reg *jobs.Registry, locks *keylock.Table, pr *procs.Registry, cancel Canceler) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Reaper{
		cfg:    cfg,
		jobs:   reg,
		locks:  locks,
		procs:  pr,
		cancel: cancel,
		now:    time.Now,
	}
}

// Sweep reaps every running job whose heartbeat age exceeds MaxIdle and whose
// age since start exceeds MinAge, and returns their ids. Both comparisons are
// strict, so a job started at now is never reaped even with MaxIdle zero.
func (r *Reaper) Sweep(now time.Time) []string {
	metrics.ReaperSweepsTotal.Inc()

	var reaped []string
	for _, j := range r.jobs.List(jobs.FilterRunning) {
		if !r.stale(j, now) {
			continue
		}

		// Record the failure before killing anything, so the worker waking
		// from a dead subprocess cannot finish the job with its own error.
		idle := now.Sub(j.HeartbeatAt).Round(time.Second)
		if !r.jobs.Transition(j.ID, jobs.StateFailed, nil, fmt.Errorf("%w for %v", ErrOrphaned, idle)) {
			// Finished between List and Transition.
			continue
		}
		killed := r.procs.Kill(j.ID)
		if r.cancel != nil {
			r.cancel.CancelToken(j.ID)
		}
		r.locks.Release(keylock.NewKey(j.Kind, j.Target), j.ID)

		metrics.ReaperReapedTotal.WithLabelValues(j.Kind).Inc()
		metrics.JobsFinishedTotal.WithLabelValues(j.Kind, string(jobs.StateFailed)).Inc()
		logging.Warn("Reaped orphaned %s job %s for %s (idle %v, %d subprocess(es) killed)",
			j.Kind, j.ID, j.Target, idle, killed)
		reaped = append(reaped, j.ID)
	}
	return reaped
}

func (r *Reaper) stale(j jobs.Job, now time.Time) bool {
	if j.State != jobs.StateRunning {
		return false
	}
	return now.Sub(j.HeartbeatAt) > r.cfg.MaxIdle && now.Sub(j.StartedAt) > r.cfg.MinAge
}

// Start runs Sweep every Interval until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	logging.Info("Orphan reaper started (interval %v, max idle %v, min age %v)",
		r.cfg.Interval, r.cfg.MaxIdle, r.cfg.MinAge)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Orphan reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
