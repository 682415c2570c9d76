package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"media-worker/internal/logging"
	"media-worker/internal/metrics"
	"media-worker/internal/procs"
)

var (
	// ErrTimeout is returned when a subprocess exceeds its wall-clock budget.
	ErrTimeout = errors.New("subprocess timed out")
	// ErrFailed is wrapped by every ExitError.
	ErrFailed = errors.New("subprocess failed")
)

const stderrTailBytes = 2048

// ExitError reports a non-zero exit from ffmpeg or ffprobe.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error { return ErrFailed }

// Config holds tool paths and time budgets.
type Config struct {
	FFmpegPath   string
	FFprobePath  string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	// WaitDelay bounds how long Wait lingers for output pipes after a kill.
	WaitDelay time.Duration
}

// DefaultConfig returns binaries resolved from PATH with a 10 minute budget
// for encodes and 30 seconds for probes.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		Timeout:      10 * time.Minute,
		ProbeTimeout: 30 * time.Second,
		WaitDelay:    5 * time.Second,
	}
}

// Runner executes ffmpeg and ffprobe with a hard timeout, cancellation and
// process-group isolation. Commands started under a context carrying a job id
// (procs.WithJob) are registered so the job can be killed from outside.
type Runner struct {
	cfg   Config
	procs *procs.Registry
}

// NewRunner creates a runner. reg may be nil.
func NewRunner(cfg Config, reg *procs.Registry) *Runner {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = def.WaitDelay
	}
	return &Runner{cfg: cfg, procs: reg}
}

// Available reports whether the ffmpeg binary can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.cfg.FFmpegPath)
	return err == nil
}

// FFmpeg runs ffmpeg with args and returns its stdout.
func (r *Runner) FFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, "ffmpeg", r.cfg.FFmpegPath, r.cfg.Timeout, args)
}

// FFprobe runs ffprobe with args and returns its stdout.
func (r *Runner) FFprobe(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, "ffprobe", r.cfg.FFprobePath, r.cfg.ProbeTimeout, args)
}

func (r *Runner) run(ctx context.Context, tool, bin string, timeout time.Duration, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		metrics.SubprocessRunsTotal.WithLabelValues(tool, "canceled").Inc()
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	procs.Isolate(cmd)
	cmd.Cancel = func() error { return procs.Terminate(cmd) }
	cmd.WaitDelay = r.cfg.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("Running %s %s", tool, strings.Join(args, " "))
	start := time.Now()

	if err := cmd.Start(); err != nil {
		metrics.SubprocessRunsTotal.WithLabelValues(tool, "error").Inc()
		return nil, fmt.Errorf("start %s: %w", tool, err)
	}

	jobID := procs.JobID(ctx)
	if r.procs != nil {
		r.procs.Register(jobID, cmd)
	}
	err := cmd.Wait()
	if r.procs != nil {
		r.procs.Unregister(jobID, cmd)
	}
	metrics.SubprocessDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.SubprocessRunsTotal.WithLabelValues(tool, "success").Inc()
		return stdout.Bytes(), nil
	case ctx.Err() != nil:
		metrics.SubprocessRunsTotal.WithLabelValues(tool, "canceled").Inc()
		return nil, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		metrics.SubprocessRunsTotal.WithLabelValues(tool, "timeout").Inc()
		logging.Warn("%s timed out after %v", tool, timeout)
		return nil, fmt.Errorf("%s after %v: %w", tool, timeout, ErrTimeout)
	}

	metrics.SubprocessRunsTotal.WithLabelValues(tool, "error").Inc()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &ExitError{Tool: tool, Code: exitErr.ExitCode(), Stderr: tail(stderr.String())}
	}
	return nil, fmt.Errorf("%s: %w", tool, err)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailBytes {
		return s
	}
	return "..." + s[len(s)-stderrTailBytes:]
}
