package startup

import (
	"fmt"
	"os"
	"time"

	"media-worker/internal/artifacts"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the CONFIG_FILE layout. Absent keys leave the current
// value untouched; environment variables are applied afterwards and win.
type fileConfig struct {
	Paths struct {
		Media    *string `toml:"media_dir"`
		Cache    *string `toml:"cache_dir"`
		Database *string `toml:"database_dir"`
		FFmpeg   *string `toml:"ffmpeg"`
		FFprobe  *string `toml:"ffprobe"`
	} `toml:"paths"`

	Server struct {
		Port    *string `toml:"port"`
		Metrics *bool   `toml:"metrics_enabled"`
	} `toml:"server"`

	Limits struct {
		MaxWorkers        *int    `toml:"max_workers"`
		SubprocessTimeout *string `toml:"subprocess_timeout"`
		HeartbeatInterval *string `toml:"heartbeat_interval"`
	} `toml:"limits"`

	Reaper struct {
		Interval *string `toml:"interval"`
		MaxIdle  *string `toml:"max_idle"`
		MinAge   *string `toml:"min_age"`
	} `toml:"reaper"`

	Jobs struct {
		Retention      *string `toml:"retention"`
		RetentionCount *int    `toml:"retention_count"`
	} `toml:"jobs"`

	Idle struct {
		Enabled        *bool    `toml:"enabled"`
		CPUPercentMax  *float64 `toml:"cpu_percent_max"`
		LoadPerCoreMax *float64 `toml:"load_per_core_max"`
		MinSeconds     *float64 `toml:"min_seconds"`
		PollSeconds    *float64 `toml:"poll_seconds"`
		MaxConcurrent  *int     `toml:"max_concurrent"`
		Kinds          []string `toml:"kinds"`
		FailureBackoff *string  `toml:"failure_backoff"`
		Base           *string  `toml:"base"`
	} `toml:"idle"`

	Duplicates struct {
		MinSimilarity *float64 `toml:"min_similarity"`
	} `toml:"duplicates"`
}

func applyOverlay(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	e := &cfg.Engine

	setString(&cfg.MediaDir, fc.Paths.Media)
	setString(&cfg.CacheDir, fc.Paths.Cache)
	setString(&cfg.DatabaseDir, fc.Paths.Database)
	setString(&e.FFmpeg.FFmpegPath, fc.Paths.FFmpeg)
	setString(&e.FFmpeg.FFprobePath, fc.Paths.FFprobe)
	setString(&cfg.Port, fc.Server.Port)
	if fc.Server.Metrics != nil {
		cfg.MetricsEnabled = *fc.Server.Metrics
	}

	if fc.Limits.MaxWorkers != nil {
		e.MaxWorkers = *fc.Limits.MaxWorkers
	}
	if fc.Jobs.RetentionCount != nil {
		e.Jobs.MaxFinished = *fc.Jobs.RetentionCount
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"limits.subprocess_timeout", fc.Limits.SubprocessTimeout, &e.FFmpeg.Timeout},
		{"limits.heartbeat_interval", fc.Limits.HeartbeatInterval, &e.Harness.HeartbeatInterval},
		{"reaper.interval", fc.Reaper.Interval, &e.Reaper.Interval},
		{"reaper.max_idle", fc.Reaper.MaxIdle, &e.Reaper.MaxIdle},
		{"reaper.min_age", fc.Reaper.MinAge, &e.Reaper.MinAge},
		{"jobs.retention", fc.Jobs.Retention, &e.Jobs.Retention},
		{"idle.failure_backoff", fc.Idle.FailureBackoff, &e.Idle.FailureBackoff},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil || v <= 0 {
			return fmt.Errorf("config %s: invalid duration %q", d.key, *d.src)
		}
		*d.dst = v
	}

	if fc.Idle.Enabled != nil {
		e.Idle.Enabled = *fc.Idle.Enabled
	}
	if fc.Idle.CPUPercentMax != nil {
		e.Idle.CPUPercentMax = *fc.Idle.CPUPercentMax
	}
	if fc.Idle.LoadPerCoreMax != nil {
		e.Idle.LoadPerCoreMax = *fc.Idle.LoadPerCoreMax
	}
	if fc.Idle.MinSeconds != nil {
		e.Idle.MinIdle = time.Duration(*fc.Idle.MinSeconds * float64(time.Second))
	}
	if fc.Idle.PollSeconds != nil {
		e.Idle.Poll = time.Duration(*fc.Idle.PollSeconds * float64(time.Second))
	}
	if fc.Idle.MaxConcurrent != nil {
		e.Idle.MaxConcurrent = *fc.Idle.MaxConcurrent
	}
	if len(fc.Idle.Kinds) > 0 {
		for _, k := range fc.Idle.Kinds {
			if !artifacts.Valid(k) {
				return fmt.Errorf("config idle.kinds: %w: %q", artifacts.ErrUnsupportedKind, k)
			}
		}
		e.Idle.Kinds = artifacts.SortByPriority(fc.Idle.Kinds)
	}
	setString(&e.Idle.Base, fc.Idle.Base)

	if fc.Duplicates.MinSimilarity != nil {
		e.DuplicateMinSimilarity = *fc.Duplicates.MinSimilarity
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}
