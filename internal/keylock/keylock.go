// Package keylock is the per-file lock: a table from (artifact kind,
// normalized library path) to the id of the job holding it.
package keylock

import (
	"path/filepath"
	"strings"
	"sync"
)

// Key identifies one artifact of one file.
type Key struct {
	Kind string
	Path string
}

// NewKey builds a key with a normalized path.
func NewKey(kind, path string) Key {
	return Key{Kind: kind, Path: Normalize(path)}
}

func (k Key) String() string {
	return k.Kind + ":" + k.Path
}

// Normalize cleans a library-relative path so that equivalent spellings
// ("./a//b.mp4", "/a/b.mp4", "a\b.mp4" on Windows) map to the same key.
func Normalize(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// LiveFunc reports whether a holder id still belongs to a non-terminal job.
type LiveFunc func(holder string) bool

// Table maps keys to holder ids. The zero value is not usable; call New.
type Table struct {
	mu      sync.Mutex
	holders map[Key]string
	live    LiveFunc
}

// New creates a table. live is consulted when a key is contended so that a
// holder whose job already ended (or was evicted) does not wedge the key.
// A nil live treats every holder as alive.
func New(live LiveFunc) *Table {
	return &Table{
		holders: make(map[Key]string),
		live:    live,
	}
}

// TryAcquire gives the key to holder unless another live holder has it.
// It returns the current holder and whether holder now owns the key.
func (t *Table) TryAcquire(k Key, holder string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.holders[k]; ok && cur != holder {
		if t.live == nil || t.live(cur) {
			return cur, false
		}
	}
	t.holders[k] = holder
	return holder, true
}

// Holder returns the id currently holding k.
func (t *Table) Holder(k Key) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.holders[k]
	return h, ok
}

// Release frees k only if holder still owns it. Releasing with a stale id is
// a no-op and returns false.
func (t *Table) Release(k Key, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.holders[k] != holder {
		return false
	}
	delete(t.holders, k)
	return true
}

// ReleaseHolder frees every key owned by holder and returns how many were freed.
func (t *Table) ReleaseHolder(holder string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, h := range t.holders {
		if h == holder {
			delete(t.holders, k)
			n++
		}
	}
	return n
}

// Len returns the number of held keys.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}
