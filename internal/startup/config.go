package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-worker/internal/artifacts"
	"media-worker/internal/engine"
	"media-worker/internal/logging"
)

// IndexFileName is the hash index database inside DATABASE_DIR.
const IndexFileName = "hashes.db"

// Config holds all application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	ConfigFile      string
	MetricsEnabled  bool
	LogHealthChecks bool

	// Engine is ready to pass to engine.New.
	Engine engine.Config
}

// LoadConfig prints the banner and loads configuration: defaults, then the
// optional CONFIG_FILE overlay, then environment variables.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()
	return loadConfig()
}

// Load loads configuration without the banner, for command-line tools.
func Load() (*Config, error) {
	return loadConfig()
}

func loadConfig() (*Config, error) {
	section("CONFIGURATION")

	cfg := &Config{
		MediaDir:        "/media",
		CacheDir:        "/cache",
		DatabaseDir:     "/database",
		Port:            "8080",
		ConfigFile:      os.Getenv("CONFIG_FILE"),
		MetricsEnabled:  true,
		LogHealthChecks: false,
		Engine:          engine.DefaultConfig(),
	}
	cfg.Engine.Idle.Enabled = true

	if cfg.ConfigFile != "" {
		if err := applyOverlay(cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
		logging.Info("  CONFIG_FILE:              %s", cfg.ConfigFile)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	logConfig(cfg)

	section("DIRECTORY SETUP")

	var err error
	if cfg.MediaDir, err = filepath.Abs(cfg.MediaDir); err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	if cfg.CacheDir, err = filepath.Abs(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	if cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Media directory (absolute):    %s", cfg.MediaDir)
	logging.Info("  Cache directory (absolute):    %s", cfg.CacheDir)
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)

	// The library is read-only; a missing one is only a warning.
	if info, err := os.Stat(cfg.MediaDir); err != nil || !info.IsDir() {
		logging.Warn("  Media directory is not readable: %s", cfg.MediaDir)
	}

	for _, dir := range []struct{ path, name string }{
		{cfg.CacheDir, "cache"},
		{cfg.DatabaseDir, "database"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	cfg.Engine.MediaDir = cfg.MediaDir
	cfg.Engine.CacheDir = cfg.CacheDir
	cfg.Engine.IndexPath = filepath.Join(cfg.DatabaseDir, IndexFileName)

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	e := &cfg.Engine

	cfg.MediaDir = getEnv("MEDIA_DIR", cfg.MediaDir)
	cfg.CacheDir = getEnv("CACHE_DIR", cfg.CacheDir)
	cfg.DatabaseDir = getEnv("DATABASE_DIR", cfg.DatabaseDir)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", cfg.LogHealthChecks)

	e.FFmpeg.FFmpegPath = getEnv("FFMPEG_PATH", e.FFmpeg.FFmpegPath)
	e.FFmpeg.FFprobePath = getEnv("FFPROBE_PATH", e.FFmpeg.FFprobePath)
	e.MaxWorkers = getEnvInt("MAX_WORKERS", e.MaxWorkers)
	e.FFmpeg.Timeout = getEnvDuration("SUBPROCESS_TIMEOUT", e.FFmpeg.Timeout)
	e.Harness.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", e.Harness.HeartbeatInterval)

	e.Reaper.Interval = getEnvDuration("REAPER_INTERVAL", e.Reaper.Interval)
	e.Reaper.MaxIdle = getEnvDuration("REAPER_MAX_IDLE", e.Reaper.MaxIdle)
	e.Reaper.MinAge = getEnvDuration("REAPER_MIN_AGE", e.Reaper.MinAge)

	e.Jobs.Retention = getEnvDuration("JOB_RETENTION", e.Jobs.Retention)
	e.Jobs.MaxFinished = getEnvInt("JOB_RETENTION_COUNT", e.Jobs.MaxFinished)

	e.Idle.Enabled = getEnvBool("IDLE_ENABLED", e.Idle.Enabled)
	e.Idle.CPUPercentMax = getEnvFloat("IDLE_CPU_PERCENT_MAX", e.Idle.CPUPercentMax)
	e.Idle.LoadPerCoreMax = getEnvFloat("IDLE_LOAD_PER_CORE_MAX", e.Idle.LoadPerCoreMax)
	e.Idle.MinIdle = getEnvSeconds("IDLE_MIN_SECONDS", e.Idle.MinIdle)
	e.Idle.Poll = getEnvSeconds("IDLE_POLL_SECONDS", e.Idle.Poll)
	e.Idle.MaxConcurrent = getEnvInt("IDLE_MAX_CONCURRENT", e.Idle.MaxConcurrent)
	if v := os.Getenv("IDLE_KINDS"); v != "" {
		kinds, err := artifacts.ParseKinds(v)
		if err != nil {
			return fmt.Errorf("IDLE_KINDS: %w", err)
		}
		e.Idle.Kinds = kinds
	}

	e.DuplicateMinSimilarity = getEnvFloat("DUPLICATE_MIN_SIMILARITY", e.DuplicateMinSimilarity)

	if e.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1, got %d", e.MaxWorkers)
	}
	if s := e.DuplicateMinSimilarity; s < 0 || s > 1 {
		return fmt.Errorf("DUPLICATE_MIN_SIMILARITY must be within [0, 1], got %v", s)
	}
	return nil
}

func logConfig(cfg *Config) {
	e := cfg.Engine
	kinds := "all"
	if len(e.Idle.Kinds) > 0 {
		kinds = strings.Join(e.Idle.Kinds, ",")
	}

	logging.Info("  MEDIA_DIR:                %s", cfg.MediaDir)
	logging.Info("  CACHE_DIR:                %s", cfg.CacheDir)
	logging.Info("  DATABASE_DIR:             %s", cfg.DatabaseDir)
	logging.Info("  PORT:                     %s", cfg.Port)
	logging.Info("  METRICS_ENABLED:          %v", cfg.MetricsEnabled)
	logging.Info("  FFMPEG_PATH:              %s", e.FFmpeg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:             %s", e.FFmpeg.FFprobePath)
	logging.Info("  MAX_WORKERS:              %d", e.MaxWorkers)
	logging.Info("  SUBPROCESS_TIMEOUT:       %v", e.FFmpeg.Timeout)
	logging.Info("  HEARTBEAT_INTERVAL:       %v", e.Harness.HeartbeatInterval)
	logging.Info("  REAPER_INTERVAL:          %v", e.Reaper.Interval)
	logging.Info("  REAPER_MAX_IDLE:          %v", e.Reaper.MaxIdle)
	logging.Info("  REAPER_MIN_AGE:           %v", e.Reaper.MinAge)
	logging.Info("  JOB_RETENTION:            %v", e.Jobs.Retention)
	logging.Info("  JOB_RETENTION_COUNT:      %d", e.Jobs.MaxFinished)
	logging.Info("  IDLE_ENABLED:             %v", e.Idle.Enabled)
	logging.Info("  IDLE_CPU_PERCENT_MAX:     %v", e.Idle.CPUPercentMax)
	logging.Info("  IDLE_LOAD_PER_CORE_MAX:   %v", e.Idle.LoadPerCoreMax)
	logging.Info("  IDLE_MIN_SECONDS:         %v", e.Idle.MinIdle.Seconds())
	logging.Info("  IDLE_POLL_SECONDS:        %v", e.Idle.Poll.Seconds())
	logging.Info("  IDLE_MAX_CONCURRENT:      %d", e.Idle.MaxConcurrent)
	logging.Info("  IDLE_KINDS:               %s", kinds)
	logging.Info("  DUPLICATE_MIN_SIMILARITY: %v", e.DuplicateMinSimilarity)
	logging.Info("  LOG_HEALTH_CHECKS:        %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvSeconds reads a whole or fractional number of seconds.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs < 0 {
		logging.Warn("Invalid seconds for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(secs * float64(time.Second))
}
