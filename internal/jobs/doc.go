// Package jobs holds the in-memory job table: the lifecycle state machine,
// progress counters, heartbeats and retention of finished jobs.
//
// Job state is not durable; a restart forgets every job. Durable outputs are
// the sidecar files and hash index rows that jobs write.
package jobs
