package startup

import (
	"errors"
	"fmt"
	"path/filepath"

	"media-worker/internal/logging"

	"github.com/gofrs/flock"
)

// LockFileName is created in the cache directory while a worker owns it.
const LockFileName = ".media-worker.lock"

// ErrCacheLocked means another process already writes to the cache directory.
var ErrCacheLocked = errors.New("cache directory is locked by another process")

// InstanceLock guards a cache directory against a second writer.
type InstanceLock struct {
	lock *flock.Flock
}

// AcquireInstanceLock takes a non-blocking exclusive lock on cacheDir.
func AcquireInstanceLock(cacheDir string) (*InstanceLock, error) {
	path := filepath.Join(cacheDir, LockFileName)
	l := flock.New(path)

	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheLocked, path)
	}
	logging.Debug("  [OK] Instance lock held: %s", path)
	return &InstanceLock{lock: l}, nil
}

// Release drops the lock. The lock file stays behind for the next start.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
