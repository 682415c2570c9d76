// Package procs tracks the subprocesses each job has started so that a
// cancel or an orphan sweep can terminate them.
package procs

import (
	"context"
	"os/exec"
	"sync"

	"media-worker/internal/logging"
	"media-worker/internal/metrics"
)

// Registry maps job ids to their live subprocesses.
type Registry struct {
	mu    sync.Mutex
	procs map[string]map[*exec.Cmd]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{procs: make(map[string]map[*exec.Cmd]struct{})}
}

// Register records a started command under jobID. An empty jobID is ignored.
func (r *Registry) Register(jobID string, cmd *exec.Cmd) {
	if jobID == "" || cmd == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.procs[jobID]
	if !ok {
		set = make(map[*exec.Cmd]struct{})
		r.procs[jobID] = set
	}
	set[cmd] = struct{}{}
	metrics.SubprocessesRunning.Inc()
}

// Unregister forgets a command once it has exited.
func (r *Registry) Unregister(jobID string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.procs[jobID]
	if !ok {
		return
	}
	if _, ok := set[cmd]; !ok {
		return
	}
	delete(set, cmd)
	metrics.SubprocessesRunning.Dec()
	if len(set) == 0 {
		delete(r.procs, jobID)
	}
}

// Kill terminates the process group of every command registered to jobID
// and returns how many were signaled. Entries are removed by Unregister when
// the waiting caller observes the exit.
func (r *Registry) Kill(jobID string) int {
	r.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(r.procs[jobID]))
	for cmd := range r.procs[jobID] {
		cmds = append(cmds, cmd)
	}
	r.mu.Unlock()

	killed := 0
	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := Terminate(cmd); err != nil {
			logging.Warn("Failed to kill subprocess %d for job %s: %v", cmd.Process.Pid, jobID, err)
			continue
		}
		killed++
	}
	if killed > 0 {
		metrics.SubprocessKillsTotal.Add(float64(killed))
		logging.Info("Killed %d subprocess(es) for job %s", killed, jobID)
	}
	return killed
}

// KillAll terminates every registered subprocess.
func (r *Registry) KillAll() int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		n += r.Kill(id)
	}
	return n
}

// Count returns the number of registered subprocesses.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.procs {
		n += len(set)
	}
	return n
}

// CountFor returns the number of subprocesses registered to jobID.
func (r *Registry) CountFor(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs[jobID])
}

type jobIDKey struct{}

// WithJob returns a context that attributes subprocesses to jobID.
func WithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobID returns the job id carried by ctx, or "".
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
