package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// Config controls retention of finished jobs.
type Config struct {
	// Retention is how long a terminal job stays listed after finishing.
	Retention time.Duration
	// MaxFinished caps the number of terminal jobs kept; oldest are evicted first.
	MaxFinished int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns the default retention settings.
func DefaultConfig() Config {
	return Config{
		Retention:   time.Hour,
		MaxFinished: 500,
	}
}

type key struct {
	kind   string
	target string
}

// Registry is the authoritative in-memory job table. All methods are safe for
// concurrent use and hold the lock only for map and field updates.
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	active map[key]string
	seq    uint64

	retention   time.Duration
	maxFinished int
	now         func() time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		jobs:        make(map[string]*Job),
		active:      make(map[key]string),
		retention:   cfg.Retention,
		maxFinished: cfg.MaxFinished,
		now:         cfg.Now,
	}
}

// New records a queued job and returns its id.
func (r *Registry) New(kind, target string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.jobs[id] = &Job{
		ID:        id,
		Kind:      kind,
		Target:    target,
		State:     StateQueued,
		CreatedAt: r.now(),
		seq:       r.seq,
	}
	r.active[key{kind, target}] = id
	return id
}

// FindActive returns the id of the queued or running job for (kind, target).
func (r *Registry) FindActive(kind, target string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[key{kind, target}]
	if !ok {
		return "", false
	}
	if j, exists := r.jobs[id]; !exists || !j.State.Active() {
		return "", false
	}
	return id, true
}

// SetProgress applies a progress update to a non-terminal job. Processed is
// clamped to [0, Total] once Total is known.
func (r *Registry) SetProgress(id string, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.State.Terminal() {
		return
	}
	if p.Total != nil {
		j.Total = max(*p.Total, 0)
	}
	if p.Processed != nil {
		j.Processed = *p.Processed
	}
	j.Processed += p.Add
	clampProgress(j)
}

func clampProgress(j *Job) {
	if j.Processed < 0 {
		j.Processed = 0
	}
	if j.Total > 0 && j.Processed > j.Total {
		j.Processed = j.Total
	}
}

// Transition moves a job to state. It returns false for unknown ids and for
// transitions the lifecycle does not allow, including any move out of a
// terminal state. result is stored on done; err is stored on failed/canceled.
func (r *Registry) Transition(id string, state State, result any, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return false
	}
	if !canTransition(j.State, state) {
		logging.Debug("Ignoring job transition %s -> %s for %s", j.State, state, id)
		return false
	}

	now := r.now()
	j.State = state
	switch {
	case state == StateRunning:
		j.StartedAt = now
		j.HeartbeatAt = now
	case state.Terminal():
		j.FinishedAt = now
		if state == StateDone {
			j.Result = result
			if j.Total > 0 {
				j.Processed = j.Total
			}
		}
		if err != nil {
			j.Error = err.Error()
		}
		k := key{j.Kind, j.Target}
		if r.active[k] == id {
			delete(r.active, k)
		}
	}
	return true
}

// Heartbeat records liveness for a running job.
func (r *Registry) Heartbeat(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[id]; ok && j.State == StateRunning {
		j.HeartbeatAt = r.now()
	}
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns copies of the jobs matching filter. Recent jobs are ordered
// newest finish first; every other filter is ordered by creation.
func (r *Registry) List(filter Filter) []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if filter.match(j.State) {
			out = append(out, *j)
		}
	}
	r.mu.Unlock()

	if filter == FilterRecent {
		sort.Slice(out, func(a, b int) bool {
			if !out[a].FinishedAt.Equal(out[b].FinishedAt) {
				return out[a].FinishedAt.After(out[b].FinishedAt)
			}
			return out[a].seq > out[b].seq
		})
		return out
	}
	sort.Slice(out, func(a, b int) bool { return out[a].seq < out[b].seq })
	return out
}

// CountActive returns the number of queued and running jobs.
func (r *Registry) CountActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, j := range r.jobs {
		if j.State.Active() {
			n++
		}
	}
	return n
}

// CountByState returns the number of jobs in each state.
func (r *Registry) CountByState() map[State]int {
	counts := make(map[State]int, len(AllStates))
	for _, s := range AllStates {
		counts[s] = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		counts[j.State]++
	}
	return counts
}

// Prune evicts terminal jobs older than the retention window, then the oldest
// terminal jobs beyond the count cap. Active jobs are never evicted.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	var finished []*Job
	for id, j := range r.jobs {
		if !j.State.Terminal() {
			continue
		}
		if r.retention > 0 && now.Sub(j.FinishedAt) > r.retention {
			delete(r.jobs, id)
			removed++
			continue
		}
		finished = append(finished, j)
	}

	if r.maxFinished > 0 && len(finished) > r.maxFinished {
		sort.Slice(finished, func(a, b int) bool {
			if !finished[a].FinishedAt.Equal(finished[b].FinishedAt) {
				return finished[a].FinishedAt.Before(finished[b].FinishedAt)
			}
			return finished[a].seq < finished[b].seq
		})
		for _, j := range finished[:len(finished)-r.maxFinished] {
			delete(r.jobs, j.ID)
			removed++
		}
	}

	if removed > 0 {
		metrics.JobsPrunedTotal.Add(float64(removed))
	}
	return removed
}

// RunPruner calls Prune every interval until ctx is done.
func (r *Registry) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				logging.Debug("Pruned %d finished jobs", n)
			}
		}
	}
}
