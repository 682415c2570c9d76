package metrics

import (
	"time"

	"media-worker/internal/logging"
)

// StatsProvider supplies a point-in-time view of the engine.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	JobsByState     map[string]int
	LimiterInUse    int
	LimiterWaiting  int
	LimiterCapacity int
	Subprocesses    int
	HashEntries     int
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	for _, state := range []string{"queued", "running", "done", "failed", "canceled"} {
		JobsByState.WithLabelValues(state).Set(float64(stats.JobsByState[state]))
	}
	LimiterInUse.Set(float64(stats.LimiterInUse))
	LimiterWaiting.Set(float64(stats.LimiterWaiting))
	LimiterCapacity.Set(float64(stats.LimiterCapacity))
	SubprocessesRunning.Set(float64(stats.Subprocesses))
	HashIndexEntries.Set(float64(stats.HashEntries))

	logging.Debug("Metrics collected: queued=%d, running=%d, slots=%d/%d, subprocesses=%d",
		stats.JobsByState["queued"], stats.JobsByState["running"],
		stats.LimiterInUse, stats.LimiterCapacity, stats.Subprocesses)
}
