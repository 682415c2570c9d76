package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-worker/internal/artifacts"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

// clearEnv unsets every key the loader reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "MEDIA_DIR", "CACHE_DIR", "DATABASE_DIR", "PORT",
		"FFMPEG_PATH", "FFPROBE_PATH", "MAX_WORKERS", "SUBPROCESS_TIMEOUT",
		"HEARTBEAT_INTERVAL", "REAPER_INTERVAL", "REAPER_MAX_IDLE", "REAPER_MIN_AGE",
		"JOB_RETENTION", "JOB_RETENTION_COUNT", "IDLE_ENABLED", "IDLE_CPU_PERCENT_MAX",
		"IDLE_LOAD_PER_CORE_MAX", "IDLE_MIN_SECONDS", "IDLE_POLL_SECONDS",
		"IDLE_MAX_CONCURRENT", "IDLE_KINDS", "DUPLICATE_MIN_SIMILARITY",
		"METRICS_ENABLED", "LOG_HEALTH_CHECKS",
	} {
		t.Setenv(k, "")
	}
}

func dirs(t *testing.T) (media, cache, db string) {
	t.Helper()
	root := t.TempDir()
	media = filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(media, 0o755))
	cache = filepath.Join(root, "cache")
	db = filepath.Join(root, "db")
	t.Setenv("MEDIA_DIR", media)
	t.Setenv("CACHE_DIR", cache)
	t.Setenv("DATABASE_DIR", db)
	return media, cache, db
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	media, cache, db := dirs(t)

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, media, cfg.MediaDir)
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.Engine.Idle.Enabled)

	assert.Equal(t, media, cfg.Engine.MediaDir)
	assert.Equal(t, cache, cfg.Engine.CacheDir)
	assert.Equal(t, filepath.Join(db, IndexFileName), cfg.Engine.IndexPath)
	assert.DirExists(t, cache)
	assert.DirExists(t, db)

	assert.Equal(t, "ffmpeg", cfg.Engine.FFmpeg.FFmpegPath)
	assert.Equal(t, 10*time.Minute, cfg.Engine.FFmpeg.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Reaper.MaxIdle)
	assert.GreaterOrEqual(t, cfg.Engine.MaxWorkers, 1)
}

func TestLoadConfig_Env(t *testing.T) {
	clearEnv(t)
	dirs(t)
	t.Setenv("PORT", "9999")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg")
	t.Setenv("MAX_WORKERS", "3")
	t.Setenv("SUBPROCESS_TIMEOUT", "90s")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("REAPER_INTERVAL", "10s")
	t.Setenv("REAPER_MAX_IDLE", "1m")
	t.Setenv("REAPER_MIN_AGE", "5s")
	t.Setenv("JOB_RETENTION", "30m")
	t.Setenv("JOB_RETENTION_COUNT", "50")
	t.Setenv("IDLE_ENABLED", "false")
	t.Setenv("IDLE_CPU_PERCENT_MAX", "40")
	t.Setenv("IDLE_LOAD_PER_CORE_MAX", "0.25")
	t.Setenv("IDLE_MIN_SECONDS", "120")
	t.Setenv("IDLE_POLL_SECONDS", "2.5")
	t.Setenv("IDLE_MAX_CONCURRENT", "2")
	t.Setenv("IDLE_KINDS", "phash,thumbnail")
	t.Setenv("DUPLICATE_MIN_SIMILARITY", "0.8")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := loadConfig()
	require.NoError(t, err)
	e := cfg.Engine

	assert.Equal(t, "9999", cfg.Port)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "/opt/ffmpeg", e.FFmpeg.FFmpegPath)
	assert.Equal(t, 3, e.MaxWorkers)
	assert.Equal(t, 90*time.Second, e.FFmpeg.Timeout)
	assert.Equal(t, 2*time.Second, e.Harness.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, e.Reaper.Interval)
	assert.Equal(t, time.Minute, e.Reaper.MaxIdle)
	assert.Equal(t, 5*time.Second, e.Reaper.MinAge)
	assert.Equal(t, 30*time.Minute, e.Jobs.Retention)
	assert.Equal(t, 50, e.Jobs.MaxFinished)
	assert.False(t, e.Idle.Enabled)
	assert.Equal(t, 40.0, e.Idle.CPUPercentMax)
	assert.Equal(t, 0.25, e.Idle.LoadPerCoreMax)
	assert.Equal(t, 2*time.Minute, e.Idle.MinIdle)
	assert.Equal(t, 2500*time.Millisecond, e.Idle.Poll)
	assert.Equal(t, 2, e.Idle.MaxConcurrent)
	assert.Equal(t, []string{artifacts.KindPhash, artifacts.KindThumbnail}, e.Idle.Kinds)
	assert.Equal(t, 0.8, e.DuplicateMinSimilarity)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Run("bad duration falls back", func(t *testing.T) {
		clearEnv(t)
		dirs(t)
		t.Setenv("SUBPROCESS_TIMEOUT", "soon")
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, cfg.Engine.FFmpeg.Timeout)
	})

	t.Run("unknown idle kind", func(t *testing.T) {
		clearEnv(t)
		dirs(t)
		t.Setenv("IDLE_KINDS", "thumbnail,hologram")
		_, err := loadConfig()
		assert.ErrorIs(t, err, artifacts.ErrUnsupportedKind)
	})

	t.Run("zero workers", func(t *testing.T) {
		clearEnv(t)
		dirs(t)
		t.Setenv("MAX_WORKERS", "0")
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("similarity out of range", func(t *testing.T) {
		clearEnv(t)
		dirs(t)
		t.Setenv("DUPLICATE_MIN_SIMILARITY", "1.5")
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("cache path is a file", func(t *testing.T) {
		clearEnv(t)
		_, cache, _ := dirs(t)
		require.NoError(t, os.WriteFile(cache, []byte("x"), 0o644))
		_, err := loadConfig()
		assert.Error(t, err)
	})
}

const overlay = `
[server]
port = "7070"

[limits]
max_workers = 5
subprocess_timeout = "3m"

[reaper]
max_idle = "45s"

[idle]
enabled = false
min_seconds = 30.0
kinds = ["sprites", "thumbnail"]
base = "shows"

[duplicates]
min_similarity = 0.95
`

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Overlay(t *testing.T) {
	clearEnv(t)
	dirs(t)
	t.Setenv("CONFIG_FILE", writeOverlay(t, overlay))
	// Environment wins over the file.
	t.Setenv("MAX_WORKERS", "2")

	cfg, err := loadConfig()
	require.NoError(t, err)
	e := cfg.Engine

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 2, e.MaxWorkers)
	assert.Equal(t, 3*time.Minute, e.FFmpeg.Timeout)
	assert.Equal(t, 45*time.Second, e.Reaper.MaxIdle)
	assert.Equal(t, 30*time.Second, e.Reaper.MinAge)
	assert.False(t, e.Idle.Enabled)
	assert.Equal(t, 30*time.Second, e.Idle.MinIdle)
	assert.Equal(t, []string{artifacts.KindThumbnail, artifacts.KindSprites}, e.Idle.Kinds)
	assert.Equal(t, "shows", e.Idle.Base)
	assert.Equal(t, 0.95, e.DuplicateMinSimilarity)
}

func TestLoadConfig_OverlayErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "[limits\nmax_workers = 1"},
		{"unknown key", "[limits]\nworkers = 1\n"},
		{"bad duration", "[reaper]\ninterval = \"often\"\n"},
		{"bad kind", "[idle]\nkinds = [\"nope\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dirs(t)
			t.Setenv("CONFIG_FILE", writeOverlay(t, tt.body))
			_, err := loadConfig()
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		dirs(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))
		_, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STARTUP_STR", "value")
	t.Setenv("TEST_STARTUP_BOOL", "maybe")
	t.Setenv("TEST_STARTUP_INT", "12")
	t.Setenv("TEST_STARTUP_FLOAT", "x")
	t.Setenv("TEST_STARTUP_SECS", "-1")
	t.Setenv("TEST_STARTUP_EMPTY", "")

	assert.Equal(t, "value", getEnv("TEST_STARTUP_STR", "d"))
	assert.Equal(t, "d", getEnv("TEST_STARTUP_EMPTY", "d"))
	assert.True(t, getEnvBool("TEST_STARTUP_BOOL", true))
	assert.Equal(t, 12, getEnvInt("TEST_STARTUP_INT", 1))
	assert.Equal(t, 0.5, getEnvFloat("TEST_STARTUP_FLOAT", 0.5))
	assert.Equal(t, time.Second, getEnvSeconds("TEST_STARTUP_SECS", time.Second))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_STARTUP_EMPTY", time.Minute))
}

func TestInstanceLock(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, LockFileName))

	_, err = AcquireInstanceLock(dir)
	assert.ErrorIs(t, err, ErrCacheLocked)

	require.NoError(t, first.Release())

	second, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Release())

	var none *InstanceLock
	assert.NoError(t, none.Release())
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs", func(_ http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet, http.MethodPost).Name("jobs")
	r.HandleFunc("/healthz", func(_ http.ResponseWriter, _ *http.Request) {})

	routes, err := GetRoutes(r)
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, RouteInfo{Method: http.MethodGet, Path: "/api/jobs", Name: "jobs"}, routes[0])
	assert.Equal(t, "*", routes[2].Method)

	assert.Equal(t, "api/jobs", routeGroup("/api/jobs/{id}"))
	assert.Equal(t, "healthz", routeGroup("/healthz"))
	assert.Equal(t, "", routeGroup("/"))
}
