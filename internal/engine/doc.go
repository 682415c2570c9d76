// Package engine is the composition root. It constructs the job registry,
// per-file locks, concurrency limiter and process registry exactly once,
// injects them into the harness, reaper and idle scheduler, and exposes the
// operations the HTTP API and the CLI call.
package engine
