// Package limiter bounds how many artifact jobs run their heavy step at once,
// independent of how many jobs have been submitted.
package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"media-worker/internal/metrics"
)

// Limiter is a counting semaphore with observable occupancy.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
	waiting  atomic.Int64
}

// New creates a limiter with capacity slots. Capacity below one is raised to one.
func New(capacity int) *Limiter {
	c := int64(max(capacity, 1))
	metrics.LimiterCapacity.Set(float64(c))
	return &Limiter{
		sem:      semaphore.NewWeighted(c),
		capacity: c,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.waiting.Add(1)
	metrics.LimiterWaiting.Inc()
	err := l.sem.Acquire(ctx, 1)
	l.waiting.Add(-1)
	metrics.LimiterWaiting.Dec()
	if err != nil {
		return err
	}
	l.inUse.Add(1)
	metrics.LimiterInUse.Inc()
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inUse.Add(1)
	metrics.LimiterInUse.Inc()
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.inUse.Add(-1)
	metrics.LimiterInUse.Dec()
	l.sem.Release(1)
}

// InUse returns the number of held slots.
func (l *Limiter) InUse() int { return int(l.inUse.Load()) }

// Waiting returns the number of callers blocked in Acquire.
func (l *Limiter) Waiting() int { return int(l.waiting.Load()) }

// Capacity returns the total number of slots.
func (l *Limiter) Capacity() int { return int(l.capacity) }
