// Package startup loads configuration, holds the cache directory instance
// lock and prints the startup and shutdown log sections.
//
// # Configuration
//
// [LoadConfig] starts from defaults, applies the TOML file named by
// CONFIG_FILE when set, then applies environment variables:
//
//   - MEDIA_DIR, CACHE_DIR, DATABASE_DIR: library, sidecar cache and hash
//     index directories (defaults /media, /cache, /database)
//   - PORT: HTTP port for the job API and /metrics (default 8080)
//   - FFMPEG_PATH, FFPROBE_PATH: tool binaries (default from PATH)
//   - MAX_WORKERS: concurrent artifact jobs (default one per CPU, max 8)
//   - SUBPROCESS_TIMEOUT, HEARTBEAT_INTERVAL: Go durations
//   - REAPER_INTERVAL, REAPER_MAX_IDLE, REAPER_MIN_AGE: Go durations
//   - JOB_RETENTION, JOB_RETENTION_COUNT: finished job retention
//   - IDLE_ENABLED, IDLE_CPU_PERCENT_MAX, IDLE_LOAD_PER_CORE_MAX,
//     IDLE_MIN_SECONDS, IDLE_POLL_SECONDS, IDLE_MAX_CONCURRENT, IDLE_KINDS:
//     the idle backfill scheduler
//   - DUPLICATE_MIN_SIMILARITY: default duplicate threshold in [0, 1]
//   - METRICS_ENABLED, LOG_HEALTH_CHECKS, LOG_LEVEL
//
// The file uses the sections [paths], [server], [limits], [reaper], [jobs],
// [idle] and [duplicates]; durations are Go duration strings.
//
// # Instance lock
//
// [AcquireInstanceLock] takes a flock on a file in the cache directory so
// two workers never write the same sidecars.
package startup
