// Command media-worker runs the artifact generation daemon for a video
// library.
//
// It generates sidecar artifacts (metadata, thumbnails, preview clips,
// sprite sheets with WebVTT indexes, perceptual hashes, motion heatmaps,
// subtitles and face reports) on request through an HTTP job API, and
// backfills missing ones while the host is idle.
//
// # Application Lifecycle
//
//  1. Memory configuration: sets GOMEMLIMIT from MEMORY_LIMIT when present
//  2. Configuration loading: defaults, CONFIG_FILE, then environment
//  3. Instance lock: a flock in the cache directory
//  4. Engine: job registry, per-file locks, worker limiter, subprocess
//     registry, hash index, orphan reaper and idle scheduler
//  5. HTTP server: job API, health probes and Prometheus metrics
//  6. Graceful shutdown on SIGINT/SIGTERM: stop accepting jobs, cancel
//     running ones, kill their subprocesses and release the lock
//
// The artifactctl command under cmd/ drives the same engine for one-off
// batch runs without the HTTP server.
package main
