package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Job metrics
var (
	JobSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_job_submissions_total",
			Help: "Total number of job submissions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // "created" or "skipped"
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"kind", "state"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_job_duration_seconds",
			Help:    "Time from job start to terminal state in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	JobQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_job_queue_wait_seconds",
			Help:    "Time a job spent queued waiting for a concurrency slot",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	JobsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_worker_jobs",
			Help: "Number of jobs currently held by the registry by state",
		},
		[]string{"state"},
	)

	JobsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_worker_jobs_pruned_total",
			Help: "Total number of terminal jobs evicted from the registry",
		},
	)
)

// Concurrency limiter metrics
var (
	LimiterCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_limiter_capacity",
			Help: "Configured number of concurrent execution slots",
		},
	)

	LimiterInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_limiter_in_use",
			Help: "Number of execution slots currently held",
		},
	)

	LimiterWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_limiter_waiting",
			Help: "Number of jobs blocked waiting for an execution slot",
		},
	)
)

// Subprocess metrics
var (
	SubprocessRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_subprocess_runs_total",
			Help: "Total number of external tool invocations by tool and status",
		},
		[]string{"tool", "status"}, // "success", "error", "timeout", "canceled"
	)

	SubprocessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_subprocess_duration_seconds",
			Help:    "External tool invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"tool"},
	)

	SubprocessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_subprocesses_running",
			Help: "Number of registered live subprocesses",
		},
	)

	SubprocessKillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_worker_subprocess_kills_total",
			Help: "Total number of subprocesses forcibly terminated",
		},
	)
)

// Orphan reaper metrics
var (
	ReaperSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_worker_reaper_sweeps_total",
			Help: "Total number of orphan reaper sweeps",
		},
	)

	ReaperReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_reaper_reaped_total",
			Help: "Total number of jobs failed as orphaned",
		},
		[]string{"kind"},
	)
)

// Idle scheduler metrics
var (
	IdleAccumulatedSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_idle_accumulated_seconds",
			Help: "Idle time accumulated towards the next backfill submission",
		},
	)

	IdleCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_idle_cpu_percent",
			Help: "Most recent host CPU utilisation sample",
		},
	)

	IdleLoadPerCore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_idle_load_per_core",
			Help: "Most recent 1-minute load average divided by core count",
		},
	)

	IdlePollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_idle_polls_total",
			Help: "Total number of idle scheduler polls by decision",
		},
		[]string{"decision"}, // "busy", "saturated", "accumulating", "submitted", "skipped", "covered", "error"
	)

	IdleSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_idle_submissions_total",
			Help: "Total number of backfill jobs submitted by the idle scheduler",
		},
		[]string{"kind"},
	)
)

// Duplicate detection and hash index metrics
var (
	DuplicateScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_worker_duplicate_scan_duration_seconds",
			Help:    "Duration of duplicate clustering runs in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	DuplicateClustersFound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_duplicate_clusters",
			Help: "Number of clusters found by the last duplicate scan",
		},
	)

	HashIndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_hash_index_entries",
			Help: "Number of perceptual hashes stored in the index",
		},
	)

	HashIndexQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_worker_hash_index_query_duration_seconds",
			Help:    "Hash index query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries after stale handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_worker_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_worker_memory_throttled",
			Help: "Whether backfill is throttled by memory pressure (1 = throttled)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_worker_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
