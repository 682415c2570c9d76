package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-worker/internal/jobs"
	"media-worker/internal/keylock"
	"media-worker/internal/limiter"
	"media-worker/internal/procs"
)

type fixture struct {
	h    *Harness
	jobs *jobs.Registry
	lim  *limiter.Limiter
	lock *keylock.Table
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	reg := jobs.New(jobs.DefaultConfig())
	locks := keylock.New(func(id string) bool {
		j, ok := reg.Get(id)
		return ok && j.State.Active()
	})
	lim := limiter.New(capacity)
	h := New(Config{HeartbeatInterval: 10 * time.Millisecond}, reg, locks, lim, procs.New())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return &fixture{h: h, jobs: reg, lim: lim, lock: locks}
}

func waitState(t *testing.T, reg *jobs.Registry, id string, want jobs.State) jobs.Job {
	t.Helper()
	var j jobs.Job
	require.Eventually(t, func() bool {
		j, _ = reg.Get(id)
		return j.State == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return j
}

func TestWrapSuccess(t *testing.T) {
	f := newFixture(t, 2)

	res, err := f.h.Wrap(context.Background(), "thumbnail", "./a.mp4", func(jc *JobContext) (any, error) {
		assert.Equal(t, "a.mp4", jc.Target())
		assert.Equal(t, "thumbnail", jc.Kind())
		assert.Equal(t, jc.ID(), procs.JobID(jc.Context()))
		got, ok := FromContext(jc.Context())
		require.True(t, ok)
		assert.Same(t, jc, got)

		jc.SetTotal(4)
		jc.Add(1)
		jc.SetProcessed(3)
		return "thumb.jpg", nil
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "thumb.jpg", res.Value)

	j, ok := f.jobs.Get(res.JobID)
	require.True(t, ok)
	assert.Equal(t, jobs.StateDone, j.State)
	assert.EqualValues(t, 4, j.Total)
	assert.EqualValues(t, 4, j.Processed)
	assert.Equal(t, "thumb.jpg", j.Result)
	assert.Equal(t, 0, f.lock.Len())
	assert.Equal(t, 0, f.lim.InUse())
}

func TestWrapFailureReturnsError(t *testing.T) {
	f := newFixture(t, 1)
	boom := errors.New("ffmpeg exited 1")

	res, err := f.h.Wrap(context.Background(), "preview", "a.mp4", func(*JobContext) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	j, _ := f.jobs.Get(res.JobID)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Equal(t, "ffmpeg exited 1", j.Error)
	assert.Equal(t, 0, f.lock.Len())
	assert.Equal(t, 0, f.lim.InUse())
}

func TestWrapPanicBecomesFailure(t *testing.T) {
	f := newFixture(t, 1)

	res, err := f.h.Wrap(context.Background(), "sprites", "a.mp4", func(*JobContext) (any, error) {
		panic("index out of range")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")

	j, _ := f.jobs.Get(res.JobID)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Equal(t, 0, f.lock.Len())
	assert.Equal(t, 0, f.lim.InUse())
}

func TestBackgroundFailureIsRecorded(t *testing.T) {
	f := newFixture(t, 1)

	sub, err := f.h.WrapBackground("heatmap", "a.mp4", func(*JobContext) (any, error) {
		return nil, errors.New("decode error")
	})
	require.NoError(t, err)
	require.False(t, sub.Skipped)

	j := waitState(t, f.jobs, sub.JobID, jobs.StateFailed)
	assert.Equal(t, "decode error", j.Error)
}

func TestScenarioThumbnailLifecycle(t *testing.T) {
	f := newFixture(t, 2)
	release := make(chan struct{})

	first, err := f.h.WrapBackground("thumbnail", "a.mp4", func(*JobContext) (any, error) {
		<-release
		return "ok", nil
	})
	require.NoError(t, err)
	require.False(t, first.Skipped)
	waitState(t, f.jobs, first.JobID, jobs.StateRunning)

	again, err := f.h.WrapBackground("thumbnail", "a.mp4", func(*JobContext) (any, error) {
		t.Error("duplicate submission must not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, first.JobID, again.JobID)

	close(release)
	waitState(t, f.jobs, first.JobID, jobs.StateDone)

	recent := f.jobs.List(jobs.FilterRecent)
	require.Len(t, recent, 1)
	assert.Equal(t, first.JobID, recent[0].ID)

	next, err := f.h.WrapBackground("thumbnail", "a.mp4", func(*JobContext) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, next.Skipped)
	assert.NotEqual(t, first.JobID, next.JobID)
}

func TestConcurrentSubmissionsDedup(t *testing.T) {
	f := newFixture(t, 4)
	release := make(chan struct{})
	var runs atomic.Int32

	var wg sync.WaitGroup
	subs := make([]Submission, 20)
	for i := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := f.h.WrapBackground("phash", "same.mp4", func(*JobContext) (any, error) {
				runs.Add(1)
				<-release
				return nil, nil
			})
			assert.NoError(t, err)
			subs[i] = sub
		}()
	}
	wg.Wait()

	created := 0
	for _, s := range subs {
		if !s.Skipped {
			created++
		}
		assert.Equal(t, subs[0].JobID, s.JobID)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, f.jobs.List(jobs.FilterAll), 1)

	close(release)
	waitState(t, f.jobs, subs[0].JobID, jobs.StateDone)
	assert.EqualValues(t, 1, runs.Load())
}

func TestDistinctFilesBoundedByLimiter(t *testing.T) {
	const capacity = 2
	const files = 8
	f := newFixture(t, capacity)

	var running, peak atomic.Int32
	ids := make([]string, 0, files)
	for i := range files {
		sub, err := f.h.WrapBackground("thumbnail", fmt.Sprintf("f%d.mp4", i), func(jc *JobContext) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			jc.SetTotal(2)
			time.Sleep(10 * time.Millisecond)
			jc.Add(2)
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
		require.False(t, sub.Skipped)
		ids = append(ids, sub.JobID)
	}

	for _, id := range ids {
		j := waitState(t, f.jobs, id, jobs.StateDone)
		assert.EqualValues(t, 2, j.Processed)
	}
	assert.Len(t, ids, files)
	assert.LessOrEqual(t, peak.Load(), int32(capacity))
}

func TestJobStaysQueuedWhileWaitingForSlot(t *testing.T) {
	f := newFixture(t, 1)
	release := make(chan struct{})

	first, err := f.h.WrapBackground("preview", "a.mp4", func(*JobContext) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitState(t, f.jobs, first.JobID, jobs.StateRunning)

	second, err := f.h.WrapBackground("preview", "b.mp4", func(*JobContext) (any, error) { return nil, nil })
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	j, _ := f.jobs.Get(second.JobID)
	assert.Equal(t, jobs.StateQueued, j.State)

	close(release)
	waitState(t, f.jobs, second.JobID, jobs.StateDone)
}

func TestCancelRunningJob(t *testing.T) {
	f := newFixture(t, 1)

	sub, err := f.h.WrapBackground("sprites", "a.mp4", func(jc *JobContext) (any, error) {
		for {
			if err := jc.Checkpoint(); err != nil {
				return nil, err
			}
			time.Sleep(time.Millisecond)
		}
	})
	require.NoError(t, err)
	waitState(t, f.jobs, sub.JobID, jobs.StateRunning)

	assert.True(t, f.h.Cancel(sub.JobID))
	waitState(t, f.jobs, sub.JobID, jobs.StateCanceled)

	require.Eventually(t, func() bool { return f.lock.Len() == 0 && f.lim.InUse() == 0 },
		time.Second, 5*time.Millisecond)
	assert.False(t, f.h.Cancel(sub.JobID), "finished job cannot be canceled")
}

func TestCancelQueuedJob(t *testing.T) {
	f := newFixture(t, 1)
	release := make(chan struct{})
	defer close(release)

	blocker, err := f.h.WrapBackground("preview", "a.mp4", func(*JobContext) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitState(t, f.jobs, blocker.JobID, jobs.StateRunning)

	queued, err := f.h.WrapBackground("preview", "b.mp4", func(*JobContext) (any, error) {
		t.Error("canceled job must not run")
		return nil, nil
	})
	require.NoError(t, err)

	assert.True(t, f.h.Cancel(queued.JobID))
	j, _ := f.jobs.Get(queued.JobID)
	assert.Equal(t, jobs.StateCanceled, j.State)
}

func TestSyncWrapCanceledByCaller(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	res, err := f.h.Wrap(ctx, "phash", "a.mp4", func(jc *JobContext) (any, error) {
		cancel()
		<-jc.Context().Done()
		return nil, jc.Checkpoint()
	})
	assert.ErrorIs(t, err, context.Canceled)

	j, _ := f.jobs.Get(res.JobID)
	assert.Equal(t, jobs.StateCanceled, j.State)
}

func TestHeartbeatFromHarness(t *testing.T) {
	f := newFixture(t, 1)
	release := make(chan struct{})

	sub, err := f.h.WrapBackground("faces", "a.mp4", func(*JobContext) (any, error) {
		// Blocked work never yields; liveness must still advance.
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	started := waitState(t, f.jobs, sub.JobID, jobs.StateRunning)

	require.Eventually(t, func() bool {
		j, _ := f.jobs.Get(sub.JobID)
		return j.HeartbeatAt.After(started.HeartbeatAt)
	}, time.Second, 5*time.Millisecond)

	close(release)
	waitState(t, f.jobs, sub.JobID, jobs.StateDone)
}

func TestReapedJobKeepsFailure(t *testing.T) {
	f := newFixture(t, 1)
	orphaned := errors.New("orphaned")

	sub, err := f.h.WrapBackground("heatmap", "a.mp4", func(jc *JobContext) (any, error) {
		<-jc.Context().Done()
		// What a worker sees once its subprocess has been killed.
		return nil, errors.New("ffmpeg exited with code -1")
	})
	require.NoError(t, err)
	waitState(t, f.jobs, sub.JobID, jobs.StateRunning)

	// The reaper records the failure first, then cancels.
	require.True(t, f.jobs.Transition(sub.JobID, jobs.StateFailed, nil, orphaned))
	require.True(t, f.h.CancelToken(sub.JobID))

	require.Eventually(t, func() bool {
		_, held := f.lock.Holder(keylock.NewKey("heatmap", "a.mp4"))
		return !held
	}, 5*time.Second, 5*time.Millisecond)

	j, _ := f.jobs.Get(sub.JobID)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Equal(t, "orphaned", j.Error)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	f := newFixture(t, 1)

	sub, err := f.h.WrapBackground("metadata", "a.mp4", func(jc *JobContext) (any, error) {
		<-jc.Context().Done()
		return nil, jc.Checkpoint()
	})
	require.NoError(t, err)
	waitState(t, f.jobs, sub.JobID, jobs.StateRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.h.Shutdown(ctx))

	j, _ := f.jobs.Get(sub.JobID)
	assert.Equal(t, jobs.StateCanceled, j.State)

	_, err = f.h.WrapBackground("metadata", "b.mp4", func(*JobContext) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
	_, err = f.h.Wrap(context.Background(), "metadata", "b.mp4", func(*JobContext) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}
