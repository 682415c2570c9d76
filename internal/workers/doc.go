/*
Package workers sizes the engine's concurrency from the CPUs actually
available to the process.

The global ConcurrencyLimiter capacity and the library walker's worker count
are both derived here. In containers the Go runtime sets GOMAXPROCS from the
cgroup CPU quota, whereas runtime.NumCPU reports the host, so every helper
reads GOMAXPROCS:

	// Wrong: 64 on a 64-core node even with a 2 CPU limit
	n := runtime.NumCPU()

	// Right: 2 under the same limit
	n := runtime.GOMAXPROCS(0)

# Usage

	slots := workers.ForCPU(8)  // ffmpeg encodes, at most 8 at once
	walk := workers.ForIO(16)   // directory walking

# Override

ARTIFACT_WORKERS pins the count regardless of CPU detection. The per-call
limit still applies:

	env:
	- name: ARTIFACT_WORKERS
	  value: "2"

Every subprocess the engine launches is CPU-heavy, so a small value keeps
interactive requests responsive on shared hosts.
*/
package workers
