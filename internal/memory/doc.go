// Package memory sizes GOMEMLIMIT for containerized deployments and watches
// heap usage so the engine can back off while memory is tight.
//
// Artifact jobs spend most of their memory outside the Go heap (ffmpeg
// children, libvips), so ConfigureFromEnv reserves a quarter of MEMORY_LIMIT
// for them by default:
//
//   - GOMEMLIMIT: taken as-is when set.
//   - MEMORY_LIMIT: container limit in bytes or as a size ("2GiB"),
//     typically from the Kubernetes Downward API.
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the heap (default 0.75).
//
// A [Monitor] samples heap usage. Above the high water mark ShouldThrottle
// reports true and the idle scheduler treats the host as busy; above the
// critical mark WaitIfPaused holds new artifact work until usage falls back
// under the high water mark.
package memory
