package idle

import (
	"context"
	"sync"
	"time"

	"media-worker/internal/jobs"
	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// Config tunes the scheduler.
type Config struct {
	Enabled        bool
	CPUPercentMax  float64
	LoadPerCoreMax float64
	MinIdle        time.Duration
	Poll           time.Duration
	MaxConcurrent  int
	Kinds          []string
	FailureBackoff time.Duration
	// Base limits backfill to a library subdirectory ("" for all).
	Base string
}

// DefaultConfig returns the scheduler defaults. It is disabled until the
// caller opts in.
func DefaultConfig() Config {
	return Config{
		CPUPercentMax:  25,
		LoadPerCoreMax: 0.5,
		MinIdle:        60 * time.Second,
		Poll:           10 * time.Second,
		MaxConcurrent:  1,
		FailureBackoff: 6 * time.Hour,
	}
}

// Jobs is the part of the job registry the scheduler reads.
type Jobs interface {
	CountActive() int
	Get(id string) (jobs.Job, bool)
}

// Picker finds the next missing artifact.
type Picker interface {
	PickNext(ctx context.Context, base string, kinds []string) (kind, rel string, ok bool, err error)
}

// SubmitFunc enqueues a backfill job through the normal submission path.
type SubmitFunc func(kind, rel string) (jobID string, skipped bool, err error)

// Status is a snapshot for the API.
type Status struct {
	Enabled        bool       `json:"enabled"`
	Accumulated    string     `json:"accumulated"`
	AccumulatedSec float64    `json:"accumulated_seconds"`
	MinIdleSec     float64    `json:"min_idle_seconds"`
	LastSample     *Sample    `json:"last_sample,omitempty"`
	LastSampleAt   *time.Time `json:"last_sample_at,omitempty"`
	LastDecision   string     `json:"last_decision,omitempty"`
	LastSubmission *Submitted `json:"last_submission,omitempty"`
	BackedOff      int        `json:"backed_off"`
}

// Submitted describes a backfill submission.
type Submitted struct {
	JobID string    `json:"job_id"`
	Kind  string    `json:"kind"`
	Path  string    `json:"path"`
	At    time.Time `json:"at"`
}

// Scheduler accumulates idle time and submits backfill work.
type Scheduler struct {
	cfg      Config
	sampler  Sampler
	jobs     Jobs
	picker   Picker
	submit   SubmitFunc
	throttle func() bool
	now      func() time.Time

	mu           sync.Mutex
	accumulated  time.Duration
	lastPoll     time.Time
	lastSample   *Sample
	lastSampleAt time.Time
	lastDecision string
	lastSubmit   *Submitted
	pending      map[string]Submitted
	failures     map[string]time.Time
}

// New creates a scheduler. throttle may be nil.
func New(cfg Config, sampler Sampler, j Jobs, picker Picker, submit SubmitFunc, throttle func() bool) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultConfig().Poll
	}
	return &Scheduler{
		cfg:      cfg,
		sampler:  sampler,
		jobs:     j,
		picker:   picker,
		submit:   submit,
		throttle: throttle,
		now:      time.Now,
		pending:  make(map[string]Submitted),
		failures: make(map[string]time.Time),
	}
}

// SetPicker sets the coverage source. It must be called before Run when New
// was given a nil picker.
func (s *Scheduler) SetPicker(p Picker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picker = p
}

// Run polls until ctx ends. It never returns early on error.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		logging.Info("Idle scheduler disabled")
		return
	}
	logging.Info("Idle scheduler started (poll %v, min idle %v, kinds %v)", s.cfg.Poll, s.cfg.MinIdle, s.cfg.Kinds)

	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("Idle scheduler stopped")
			return
		case <-ticker.C:
			s.safePoll(ctx)
		}
	}
}

func (s *Scheduler) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("idle scheduler poll panicked: %v", r)
			s.reset("error")
		}
	}()
	s.Poll(ctx)
}

// Poll runs one scheduling step and returns its decision: "saturated",
// "busy", "accumulating", "covered", "submitted", "skipped" or "error".
func (s *Scheduler) Poll(ctx context.Context) string {
	now := s.now()
	s.collectFailures(now)

	s.mu.Lock()
	elapsed := time.Duration(0)
	if !s.lastPoll.IsZero() {
		elapsed = now.Sub(s.lastPoll)
	}
	s.lastPoll = now
	s.mu.Unlock()

	if s.jobs.CountActive() >= s.cfg.MaxConcurrent {
		return s.reset("saturated")
	}
	if s.throttle != nil && s.throttle() {
		return s.reset("busy")
	}

	sample, err := s.sampler.Sample()
	if err != nil {
		logging.Debug("idle: sampling failed: %v", err)
		return s.reset("error")
	}
	s.mu.Lock()
	s.lastSample, s.lastSampleAt = &sample, now
	s.mu.Unlock()
	if sample.Source == "cpu" {
		metrics.IdleCPUPercent.Set(sample.CPUPercent)
	}
	metrics.IdleLoadPerCore.Set(sample.LoadPerCore)

	if !s.idle(sample) {
		return s.reset("busy")
	}

	s.mu.Lock()
	s.accumulated += elapsed
	acc := s.accumulated
	s.mu.Unlock()
	metrics.IdleAccumulatedSeconds.Set(acc.Seconds())
	if acc < s.cfg.MinIdle {
		return s.decide("accumulating")
	}

	s.mu.Lock()
	picker := s.picker
	s.mu.Unlock()
	if picker == nil {
		return s.decide("error")
	}
	kind, rel, ok, err := picker.PickNext(ctx, s.cfg.Base, s.cfg.Kinds)
	if err != nil {
		logging.Debug("idle: coverage scan failed: %v", err)
		return s.decide("error")
	}
	if !ok {
		return s.decide("covered")
	}

	id, skipped, err := s.submit(kind, rel)
	if err != nil {
		logging.Warn("idle: submitting %s for %s: %v", kind, rel, err)
		return s.decide("error")
	}

	if skipped {
		// Someone else already runs this pair; keep the idle credit for the
		// next one.
		logging.Debug("idle: %s for %s already active (job %s)", kind, rel, id)
		return s.decide("skipped")
	}

	sub := Submitted{JobID: id, Kind: kind, Path: rel, At: now}
	s.mu.Lock()
	s.lastSubmit = &sub
	s.pending[id] = sub
	s.mu.Unlock()
	metrics.IdleSubmissionsTotal.WithLabelValues(kind).Inc()
	logging.Info("idle: backfilling %s for %s (job %s)", kind, rel, id)
	return s.reset("submitted")
}

func (s *Scheduler) idle(sample Sample) bool {
	if sample.Source == "cpu" {
		return sample.CPUPercent < s.cfg.CPUPercentMax
	}
	return sample.LoadPerCore < s.cfg.LoadPerCoreMax
}

func (s *Scheduler) decide(decision string) string {
	s.mu.Lock()
	s.lastDecision = decision
	s.mu.Unlock()
	metrics.IdlePollsTotal.WithLabelValues(decision).Inc()
	return decision
}

func (s *Scheduler) reset(decision string) string {
	s.mu.Lock()
	s.accumulated = 0
	s.mu.Unlock()
	metrics.IdleAccumulatedSeconds.Set(0)
	return s.decide(decision)
}

// collectFailures moves finished backfill jobs out of pending, remembering
// the failed ones so coverage skips them for FailureBackoff.
func (s *Scheduler) collectFailures(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.pending {
		j, ok := s.jobs.Get(id)
		switch {
		case !ok:
			delete(s.pending, id)
		case j.State == jobs.StateFailed:
			s.failures[failureKey(sub.Kind, sub.Path)] = now
			logging.Debug("idle: %s for %s failed, backing off for %v", sub.Kind, sub.Path, s.cfg.FailureBackoff)
			delete(s.pending, id)
		case j.State.Terminal():
			delete(s.pending, id)
		}
	}
}

// Exclude reports whether (kind, rel) is still in flight from an earlier
// backfill or failed within the backoff window. It is handed to the coverage
// scanner.
func (s *Scheduler) Exclude(kind, rel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.pending {
		if sub.Kind == kind && sub.Path == rel {
			return true
		}
	}
	k := failureKey(kind, rel)
	at, ok := s.failures[k]
	if !ok {
		return false
	}
	if s.now().Sub(at) >= s.cfg.FailureBackoff {
		delete(s.failures, k)
		return false
	}
	return true
}

func failureKey(kind, rel string) string {
	return kind + ":" + rel
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:        s.cfg.Enabled,
		Accumulated:    s.accumulated.Round(time.Second).String(),
		AccumulatedSec: s.accumulated.Seconds(),
		MinIdleSec:     s.cfg.MinIdle.Seconds(),
		LastDecision:   s.lastDecision,
		BackedOff:      len(s.failures),
	}
	if s.lastSample != nil {
		sample, at := *s.lastSample, s.lastSampleAt
		st.LastSample, st.LastSampleAt = &sample, &at
	}
	if s.lastSubmit != nil {
		sub := *s.lastSubmit
		st.LastSubmission = &sub
	}
	return st
}
