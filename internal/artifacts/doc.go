// Package artifacts generates the per-video sidecar artifacts: probe
// metadata, thumbnails, hover previews, sprite sheets with a WebVTT index,
// perceptual hashes, motion heatmaps, subtitle tracks and face stubs.
//
// Every worker writes through a temp file and a rename, so a reader never
// sees a half-written sidecar and an interrupted job leaves nothing behind.
// Workers run inside a harness job and pull their cancellation context and
// progress reporting from the harness.JobContext.
package artifacts
