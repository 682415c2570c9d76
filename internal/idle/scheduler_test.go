package idle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-worker/internal/jobs"
)

type fakeSampler struct {
	sample Sample
	err    error
}

func (f *fakeSampler) Sample() (Sample, error) { return f.sample, f.err }

type fakeJobs struct {
	mu     sync.Mutex
	active int
	states map[string]jobs.State
}

func (f *fakeJobs) CountActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeJobs) Get(id string) (jobs.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	return jobs.Job{ID: id, State: st}, ok
}

type fakePicker struct {
	kind, rel string
	ok        bool
	err       error
	exclude   func(kind, rel string) bool
	calls     int
}

func (f *fakePicker) PickNext(_ context.Context, _ string, _ []string) (string, string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", "", false, f.err
	}
	if !f.ok || (f.exclude != nil && f.exclude(f.kind, f.rel)) {
		return "", "", false, nil
	}
	return f.kind, f.rel, true, nil
}

type harness struct {
	s       *Scheduler
	sampler *fakeSampler
	jobs    *fakeJobs
	picker  *fakePicker
	now     time.Time
	subs    []string
	subErr  error
	skip    bool
	busyMem bool
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		sampler: &fakeSampler{sample: Sample{Source: "cpu", CPUPercent: 5}},
		jobs:    &fakeJobs{states: map[string]jobs.State{}},
		picker:  &fakePicker{kind: "thumbnail", rel: "a.mp4", ok: true},
		now:     time.Unix(1_700_000_000, 0),
	}
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MinIdle = 30 * time.Second
	cfg.Poll = 10 * time.Second
	cfg.FailureBackoff = time.Hour
	for _, opt := range opts {
		opt(&cfg)
	}

	submit := func(kind, rel string) (string, bool, error) {
		if h.subErr != nil {
			return "", false, h.subErr
		}
		if h.skip {
			return "job-elsewhere", true, nil
		}
		id := "job-" + kind + "-" + rel
		h.subs = append(h.subs, id)
		h.jobs.mu.Lock()
		h.jobs.states[id] = jobs.StateQueued
		h.jobs.mu.Unlock()
		return id, false, nil
	}
	h.s = New(cfg, h.sampler, h.jobs, h.picker, submit, func() bool { return h.busyMem })
	h.s.now = func() time.Time { return h.now }
	h.picker.exclude = h.s.Exclude
	return h
}

// step advances the clock by one poll interval and polls.
func (h *harness) step() string {
	h.now = h.now.Add(10 * time.Second)
	return h.s.Poll(context.Background())
}

func TestAccumulatesThenSubmits(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "accumulating", h.step()) // first poll has no elapsed time
	assert.Equal(t, "accumulating", h.step()) // 10s
	assert.Equal(t, "accumulating", h.step()) // 20s
	assert.Equal(t, "submitted", h.step())    // 30s
	require.Equal(t, []string{"job-thumbnail-a.mp4"}, h.subs)

	st := h.s.Status()
	assert.Zero(t, st.AccumulatedSec, "submission resets the accumulator")
	require.NotNil(t, st.LastSubmission)
	assert.Equal(t, "thumbnail", st.LastSubmission.Kind)
	assert.Equal(t, "a.mp4", st.LastSubmission.Path)
	require.NotNil(t, st.LastSample)
	assert.Equal(t, "submitted", st.LastDecision)
}

func TestBusySampleResets(t *testing.T) {
	h := newHarness(t)
	h.step()
	h.step()
	h.step()
	assert.InDelta(t, 20, h.s.Status().AccumulatedSec, 1e-9)

	h.sampler.sample = Sample{Source: "cpu", CPUPercent: 80}
	assert.Equal(t, "busy", h.step())
	assert.Zero(t, h.s.Status().AccumulatedSec)

	h.sampler.sample = Sample{Source: "cpu", CPUPercent: 5}
	assert.Equal(t, "accumulating", h.step())
	assert.InDelta(t, 10, h.s.Status().AccumulatedSec, 1e-9)
	assert.Empty(t, h.subs)
}

func TestLoadFallbackThreshold(t *testing.T) {
	h := newHarness(t)
	h.sampler.sample = Sample{Source: "load", LoadPerCore: 0.9}
	assert.Equal(t, "busy", h.step())

	h.sampler.sample = Sample{Source: "load", LoadPerCore: 0.2}
	assert.Equal(t, "accumulating", h.step())
}

func TestSaturatedResets(t *testing.T) {
	h := newHarness(t)
	h.step()
	h.step()

	h.jobs.active = 1
	assert.Equal(t, "saturated", h.step())
	assert.Zero(t, h.s.Status().AccumulatedSec)
	for i := 0; i < 10; i++ {
		h.step()
	}
	assert.Empty(t, h.subs)
}

func TestMemoryThrottleCountsAsBusy(t *testing.T) {
	h := newHarness(t)
	h.busyMem = true
	for i := 0; i < 5; i++ {
		assert.Equal(t, "busy", h.step())
	}
	assert.Empty(t, h.subs)
}

func TestErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t)

	h.sampler.err = errors.New("no /proc")
	assert.Equal(t, "error", h.step())
	h.sampler.err = nil

	h.picker.err = errors.New("walk failed")
	for i := 0; i < 4; i++ {
		h.step()
	}
	assert.Equal(t, "error", h.s.Status().LastDecision)

	h.picker.err = nil
	h.subErr = errors.New("shutting down")
	assert.Equal(t, "error", h.step())

	h.subErr = nil
	assert.Equal(t, "submitted", h.step())
}

func TestCoveredLibrary(t *testing.T) {
	h := newHarness(t)
	h.picker.ok = false
	for i := 0; i < 4; i++ {
		h.step()
	}
	assert.Equal(t, "covered", h.s.Status().LastDecision)
	assert.Empty(t, h.subs)
}

func TestFailedBackfillIsBackedOff(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.step()
	}
	require.Len(t, h.subs, 1)
	id := h.subs[0]

	h.jobs.mu.Lock()
	h.jobs.states[id] = jobs.StateFailed
	h.jobs.mu.Unlock()

	for i := 0; i < 4; i++ {
		h.step()
	}
	assert.Len(t, h.subs, 1, "failed pair is excluded")
	assert.Equal(t, "covered", h.s.Status().LastDecision)
	assert.Equal(t, 1, h.s.Status().BackedOff)
	assert.True(t, h.s.Exclude("thumbnail", "a.mp4"))

	h.now = h.now.Add(time.Hour)
	assert.False(t, h.s.Exclude("thumbnail", "a.mp4"))
	assert.Zero(t, h.s.Status().BackedOff)
}

// listPicker returns the first pair the scheduler does not exclude.
type listPicker struct {
	pairs   [][2]string
	exclude func(kind, rel string) bool
}

func (p *listPicker) PickNext(_ context.Context, _ string, _ []string) (string, string, bool, error) {
	for _, pair := range p.pairs {
		if !p.exclude(pair[0], pair[1]) {
			return pair[0], pair[1], true, nil
		}
	}
	return "", "", false, nil
}

func TestConcurrentBackfillPicksDistinctPairs(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.MaxConcurrent = 2
		cfg.MinIdle = 0
	})
	h.s.SetPicker(&listPicker{
		pairs:   [][2]string{{"thumbnail", "a.mp4"}, {"thumbnail", "b.mp4"}},
		exclude: h.s.Exclude,
	})

	assert.Equal(t, "submitted", h.step())
	h.jobs.mu.Lock()
	h.jobs.active = 1
	h.jobs.mu.Unlock()
	assert.Equal(t, "submitted", h.step())
	assert.Equal(t, []string{"job-thumbnail-a.mp4", "job-thumbnail-b.mp4"}, h.subs)

	assert.Equal(t, "covered", h.step(), "both pairs are in flight")
	h.jobs.mu.Lock()
	h.jobs.active = 2
	h.jobs.mu.Unlock()
	assert.Equal(t, "saturated", h.step())

	// Once a finishes the pair may be picked again.
	h.jobs.mu.Lock()
	h.jobs.active = 1
	h.jobs.states["job-thumbnail-a.mp4"] = jobs.StateDone
	h.jobs.mu.Unlock()
	assert.Equal(t, "submitted", h.step())
	assert.Len(t, h.subs, 3)
	assert.Equal(t, "job-thumbnail-a.mp4", h.subs[2])
}

func TestSkippedSubmissionKeepsIdleCredit(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.step()
	}
	h.skip = true
	assert.Equal(t, "skipped", h.step())

	st := h.s.Status()
	assert.InDelta(t, 30, st.AccumulatedSec, 1e-9)
	assert.Nil(t, st.LastSubmission)
	assert.False(t, h.s.Exclude("thumbnail", "a.mp4"), "a job started elsewhere is not tracked as backfill")

	h.skip = false
	assert.Equal(t, "submitted", h.step())
	assert.Zero(t, h.s.Status().AccumulatedSec)
}

func TestRunDisabledReturns(t *testing.T) {
	s := New(Config{}, &fakeSampler{}, &fakeJobs{}, &fakePicker{}, nil, nil)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled scheduler kept running")
	}
}

func TestRunSurvivesPanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Poll = 5 * time.Millisecond
	var mu sync.Mutex
	polls := 0
	picker := &fakePicker{}
	s := New(cfg, &fakeSampler{sample: Sample{Source: "cpu"}}, &fakeJobs{}, picker, nil, func() bool {
		mu.Lock()
		polls++
		mu.Unlock()
		panic("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestCPUPercent(t *testing.T) {
	assert.InDelta(t, 25.0, cpuPercent(100, 400, 125, 500), 1e-9)
	assert.Zero(t, cpuPercent(100, 400, 100, 400))
	assert.Equal(t, 100.0, cpuPercent(0, 0, 200, 100))
}
