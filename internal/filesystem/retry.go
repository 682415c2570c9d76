package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// RetryConfig bounds the retries of one filesystem call.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig suits NFS mounts that recover within half a second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) next(backoff time.Duration) time.Duration {
	return min(backoff*2, c.MaxBackoff)
}

// IsStale reports whether err is an NFS stale file handle.
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// withRetry calls fn until it succeeds, fails with anything but ESTALE, the
// retries run out, or ctx ends during a backoff.
func withRetry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	backoff := config.InitialBackoff

	for attempt := 0; ; attempt++ {
		v, err := fn()
		switch {
		case err == nil:
			if attempt > 0 {
				logging.Info("%s %s recovered after %d stale handle retries", op, path, attempt)
			}
			return v, nil
		case !IsStale(err):
			return zero, err
		case attempt >= config.MaxRetries:
			logging.Warn("%s %s still stale after %d retries: %v", op, path, config.MaxRetries, err)
			metrics.FilesystemRetryFailures.WithLabelValues(op).Inc()
			return zero, err
		}

		metrics.FilesystemRetryAttempts.WithLabelValues(op).Inc()
		logging.Debug("%s %s: stale file handle, retry %d/%d in %v", op, path, attempt+1, config.MaxRetries, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		backoff = config.next(backoff)
	}
}

// StatWithRetry is os.Stat retried on stale NFS handles.
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry is os.Open retried on stale NFS handles.
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return withRetry(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}
