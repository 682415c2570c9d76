// Package idle fills otherwise idle capacity with backfill work. A
// Scheduler polls host load, accumulates time spent below the configured
// thresholds, and once enough has built up asks the coverage scanner for the
// next missing artifact and submits it through the same path as foreground
// requests. Foreground work wins only because it shares the same limiter and
// per-file locks; there is no priority queue.
package idle
