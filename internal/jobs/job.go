package jobs

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups for an unknown or evicted job id.
var ErrNotFound = errors.New("job not found")

// State is a job lifecycle state.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{StateQueued, StateRunning, StateDone, StateFailed, StateCanceled}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// Active reports whether s holds a per-file lock.
func (s State) Active() bool {
	return s == StateQueued || s == StateRunning
}

// canTransition encodes the monotonic lifecycle:
// queued -> running -> {done, failed, canceled}, and queued -> {failed, canceled}.
func canTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateFailed || to == StateCanceled
	case StateRunning:
		return to.Terminal()
	default:
		return false
	}
}

// Job is a snapshot of one tracked unit of work.
type Job struct {
	ID          string    `json:"id"`
	Kind        string    `json:"type"`
	Target      string    `json:"target"`
	State       State     `json:"state"`
	Processed   int64     `json:"processed"`
	Total       int64     `json:"total"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	HeartbeatAt time.Time `json:"heartbeat_at,omitzero"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`

	seq uint64
}

// Percent returns progress in [0, 100], or -1 while the total is unknown.
func (j Job) Percent() float64 {
	if j.Total <= 0 {
		return -1
	}
	return float64(j.Processed) * 100 / float64(j.Total)
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s %s (%s)", j.ID, j.Kind, j.Target, j.State)
}

// Progress is a partial progress update. Nil fields are left unchanged;
// Add is applied after Processed.
type Progress struct {
	Total     *int64
	Add       int64
	Processed *int64
}

// Filter selects which jobs List returns.
type Filter string

const (
	FilterQueued  Filter = "queued"
	FilterRunning Filter = "running"
	FilterActive  Filter = "active"
	FilterRecent  Filter = "recent"
	FilterAll     Filter = "all"
)

// ParseFilter validates a filter name. The empty string means active.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterActive, nil
	case FilterQueued, FilterRunning, FilterActive, FilterRecent, FilterAll:
		return f, nil
	default:
		return "", fmt.Errorf("unknown job filter %q", s)
	}
}

func (f Filter) match(s State) bool {
	switch f {
	case FilterQueued:
		return s == StateQueued
	case FilterRunning:
		return s == StateRunning
	case FilterActive:
		return s.Active()
	case FilterRecent:
		return s.Terminal()
	default:
		return true
	}
}
