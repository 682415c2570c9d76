package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the worker count.
const OverrideEnv = "ARTIFACT_WORKERS"

// Count returns the number of concurrent workers for a workload.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (ffmpeg encodes, frame decoding)
//   - 2.0 for I/O-bound tasks (directory walks, probes)
//   - 1.5 for mixed tasks
//
// The limit parameter caps the result; 0 means no cap. ARTIFACT_WORKERS
// overrides the computed value but is still capped by limit.
func Count(multiplier float64, limit int) int {
	if n, ok := override(); ok {
		return capAt(n, limit)
	}

	available := runtime.GOMAXPROCS(0)
	n := int(float64(available) * multiplier)
	if n < 1 {
		n = 1
	}
	return capAt(n, limit)
}

func override() (int, bool) {
	v := os.Getenv(OverrideEnv)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Cores reports the CPUs available to this process, used to normalise load
// averages into a per-core figure.
func Cores() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
