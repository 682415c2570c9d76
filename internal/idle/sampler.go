package idle

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/procfs"
)

// Sample is one reading of host load.
type Sample struct {
	// CPUPercent is utilization across all cores since the previous sample.
	// Valid when Source is "cpu".
	CPUPercent float64 `json:"cpu_percent"`
	// LoadPerCore is the 1-minute load average divided by core count.
	LoadPerCore float64 `json:"load_per_core"`
	// Source is "cpu" or "load".
	Source string `json:"source"`
}

// Sampler reads host load.
type Sampler interface {
	Sample() (Sample, error)
}

// ProcSampler reads /proc/stat deltas, falling back to /proc/loadavg for the
// first call and whenever stat is unreadable.
type ProcSampler struct {
	fs    procfs.FS
	cores int

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	havePrev  bool
}

// NewProcSampler opens the default /proc mount.
func NewProcSampler() (*ProcSampler, error) {
	return newProcSampler(procfs.DefaultMountPoint)
}

func newProcSampler(mount string) (*ProcSampler, error) {
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcSampler{fs: fs, cores: runtime.NumCPU()}, nil
}

// Sample implements Sampler. It fails only when neither stat nor loadavg
// yields a usable reading.
func (p *ProcSampler) Sample() (Sample, error) {
	var s Sample
	avg, loadErr := p.fs.LoadAvg()
	if loadErr == nil {
		s.LoadPerCore = avg.Load1 / float64(max(p.cores, 1))
	}
	fallback := func(statErr error) (Sample, error) {
		if loadErr != nil {
			if statErr != nil {
				return Sample{}, fmt.Errorf("read stat: %w; read loadavg: %w", statErr, loadErr)
			}
			return Sample{}, fmt.Errorf("read loadavg: %w", loadErr)
		}
		s.Source = "load"
		return s, nil
	}

	stat, err := p.fs.Stat()
	if err != nil {
		return fallback(err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	total := idle + busy

	p.mu.Lock()
	defer p.mu.Unlock()
	prevBusy, prevTotal, havePrev := p.prevBusy, p.prevTotal, p.havePrev
	p.prevBusy, p.prevTotal, p.havePrev = busy, total, true

	if !havePrev || total <= prevTotal {
		return fallback(nil)
	}
	s.CPUPercent = cpuPercent(prevBusy, prevTotal, busy, total)
	s.Source = "cpu"
	return s, nil
}

// cpuPercent is the busy share of the time elapsed between two readings.
func cpuPercent(prevBusy, prevTotal, busy, total float64) float64 {
	dt := total - prevTotal
	if dt <= 0 {
		return 0
	}
	pct := (busy - prevBusy) / dt * 100
	return min(max(pct, 0), 100)
}
