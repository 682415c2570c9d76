// Package metrics provides Prometheus instrumentation for the artifact engine.
//
// All metrics are registered with promauto at package init and prefixed with
// "media_worker_". They are exposed on /metrics by the HTTP server.
//
// # Metric Categories
//
// ## Jobs
//
//   - JobSubmissionsTotal: submissions by kind and outcome (created/skipped)
//   - JobsFinishedTotal: terminal transitions by kind and state
//   - JobDuration: start-to-finish duration by kind
//   - JobQueueWait: time spent queued waiting for a slot
//   - JobsByState: registry population by state (set by the Collector)
//
// ## Concurrency
//
//   - LimiterCapacity, LimiterInUse, LimiterWaiting
//   - SubprocessRunsTotal, SubprocessDuration, SubprocessesRunning,
//     SubprocessKillsTotal
//
// ## Recovery and scheduling
//
//   - ReaperSweepsTotal, ReaperReapedTotal
//   - IdleAccumulatedSeconds, IdleCPUPercent, IdleLoadPerCore,
//     IdlePollsTotal, IdleSubmissionsTotal
//
// ## Duplicates
//
//   - DuplicateScanDuration, DuplicateClustersFound, HashIndexEntries,
//     HashIndexQueryDuration
//
// # Usage
//
//	metrics.InitializeMetrics(artifacts.KindNames())
//	collector := metrics.NewCollector(engine, 15*time.Second)
//	collector.Start()
//	defer collector.Stop()
package metrics
