package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"media-worker/internal/artifacts"
	"media-worker/internal/coverage"
	"media-worker/internal/dupes"
	"media-worker/internal/ffmpeg"
	"media-worker/internal/harness"
	"media-worker/internal/hashindex"
	"media-worker/internal/idle"
	"media-worker/internal/jobs"
	"media-worker/internal/keylock"
	"media-worker/internal/library"
	"media-worker/internal/limiter"
	"media-worker/internal/logging"
	"media-worker/internal/mediatypes"
	"media-worker/internal/memory"
	"media-worker/internal/metrics"
	"media-worker/internal/procs"
	"media-worker/internal/reaper"
	"media-worker/internal/workers"
)

// ErrInvalidTarget is returned for a target outside the library or not a
// video.
var ErrInvalidTarget = errors.New("invalid target")

// Config wires every component.
type Config struct {
	MediaDir  string
	CacheDir  string
	IndexPath string

	MaxWorkers    int
	PruneInterval time.Duration

	DuplicateMinSimilarity float64

	Harness harness.Config
	FFmpeg  ffmpeg.Config
	Jobs    jobs.Config
	Reaper  reaper.Config
	Idle    idle.Config
	Memory  memory.Config
	Walker  library.WalkerConfig
}

// DefaultConfig returns defaults for every component; the caller fills in
// the directories.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:             workers.ForCPU(8),
		PruneInterval:          time.Minute,
		DuplicateMinSimilarity: dupes.DefaultMinSimilarity,
		Harness:                harness.DefaultConfig(),
		FFmpeg:                 ffmpeg.DefaultConfig(),
		Jobs:                   jobs.DefaultConfig(),
		Reaper:                 reaper.DefaultConfig(),
		Idle:                   idle.DefaultConfig(),
		Memory:                 memory.DefaultConfig(),
		Walker:                 library.DefaultWalkerConfig(),
	}
}

// Engine owns the shared job state and the background loops.
type Engine struct {
	cfg Config

	jobs    *jobs.Registry
	locks   *keylock.Table
	limiter *limiter.Limiter
	procs   *procs.Registry
	harness *harness.Harness

	runner   *ffmpeg.Runner
	gen      *artifacts.Generator
	index    *hashindex.Store
	walker   *library.Walker
	coverage *coverage.Scanner
	reaper   *reaper.Reaper
	idle     *idle.Scheduler
	mem      *memory.Monitor

	startOnce sync.Once
	stop      context.CancelFunc
	loops     sync.WaitGroup
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	sampler idle.Sampler
}

// WithSampler replaces the /proc host load sampler.
func WithSampler(s idle.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// New builds the engine and opens the hash index. Background loops start
// with Start.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MediaDir == "" || cfg.CacheDir == "" {
		return nil, errors.New("media and cache directories are required")
	}

	index, err := hashindex.Open(ctx, cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("open hash index: %w", err)
	}

	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}

	e := &Engine{index: index}
	e.jobs = jobs.New(cfg.Jobs)
	e.locks = keylock.New(e.holderLive)
	e.limiter = limiter.New(cfg.MaxWorkers)
	e.procs = procs.New()
	e.harness = harness.New(cfg.Harness, e.jobs, e.locks, e.limiter, e.procs)

	e.runner = ffmpeg.NewRunner(cfg.FFmpeg, e.procs)
	e.gen = artifacts.NewGenerator(cfg.MediaDir, artifacts.NewStore(cfg.CacheDir), e.runner, index)
	e.walker = library.NewWalker(cfg.MediaDir, cfg.Walker)
	e.mem = memory.NewMonitor(cfg.Memory)
	e.reaper = reaper.New(cfg.Reaper, e.jobs, e.locks, e.procs, e.harness)

	sampler := o.sampler
	if sampler == nil && cfg.Idle.Enabled {
		ps, err := idle.NewProcSampler()
		if err != nil {
			logging.Warn("Idle scheduler has no host sampler, disabling: %v", err)
			cfg.Idle.Enabled = false
		} else {
			sampler = ps
		}
	}
	if len(cfg.Idle.Kinds) == 0 {
		cfg.Idle.Kinds = artifacts.Priority
	}
	e.idle = idle.New(cfg.Idle, sampler, e.jobs, nil, e.submitBackfill, e.mem.ShouldThrottle)
	e.coverage = coverage.New(e.walker, e.gen, e.backfillExcluded)
	e.idle.SetPicker(e.coverage)
	e.cfg = cfg

	if !e.runner.Available() {
		logging.Warn("ffmpeg/ffprobe not found (%s, %s); artifact jobs will fail",
			cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	}
	metrics.InitializeMetrics(artifacts.Priority)
	return e, nil
}

// backfillExcluded hides pairs that already have a live job or recently
// failed as backfill.
func (e *Engine) backfillExcluded(kind, rel string) bool {
	if _, active := e.jobs.FindActive(kind, keylock.Normalize(rel)); active {
		return true
	}
	return e.idle.Exclude(kind, rel)
}

// holderLive backs the lock table: a key whose holder finished or was
// evicted may be taken over.
func (e *Engine) holderLive(id string) bool {
	j, ok := e.jobs.Get(id)
	return ok && j.State.Active()
}

// Start launches the pruner, reaper, idle scheduler and memory monitor.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.stop = context.WithCancel(ctx)
		e.mem.Start()
		e.loops.Add(3)
		go func() {
			defer e.loops.Done()
			e.jobs.RunPruner(ctx, e.cfg.PruneInterval)
		}()
		go func() {
			defer e.loops.Done()
			e.reaper.Start(ctx)
		}()
		go func() {
			defer e.loops.Done()
			e.idle.Run(ctx)
		}()
	})
}

// Shutdown stops the loops, cancels every job, kills subprocesses and closes
// the hash index.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.stop != nil {
		e.stop()
	}
	e.loops.Wait()
	e.mem.Stop()

	err := e.harness.Shutdown(ctx)
	if cerr := e.index.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// validate checks kind and target and returns the normalized target.
func (e *Engine) validate(kind, target string, p artifacts.Params) (string, error) {
	if !artifacts.Valid(kind) {
		return "", fmt.Errorf("%w: %q", artifacts.ErrUnsupportedKind, kind)
	}
	rel := keylock.Normalize(target)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if !mediatypes.IsVideo(path.Base(rel)) {
		return "", fmt.Errorf("%w: %q is not a video", ErrInvalidTarget, target)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return rel, nil
}

// work wraps the generator so new jobs wait out critical memory pressure.
func (e *Engine) work(kind string, p artifacts.Params) harness.Func {
	run := e.gen.Func(kind, p)
	return func(jc *harness.JobContext) (any, error) {
		if !e.mem.WaitIfPaused(jc.Context()) {
			if err := jc.Context().Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("memory monitor stopped")
		}
		return run(jc)
	}
}

// Submit queues an artifact job and returns at once. A live job on the same
// (kind, target) is returned with Skipped set.
func (e *Engine) Submit(kind, target string, p artifacts.Params) (harness.Submission, error) {
	rel, err := e.validate(kind, target, p)
	if err != nil {
		return harness.Submission{}, err
	}
	return e.harness.WrapBackground(kind, rel, e.work(kind, p))
}

// Generate runs an artifact job in the caller's goroutine.
func (e *Engine) Generate(ctx context.Context, kind, target string, p artifacts.Params) (harness.Result, error) {
	rel, err := e.validate(kind, target, p)
	if err != nil {
		return harness.Result{}, err
	}
	return e.harness.Wrap(ctx, kind, rel, e.work(kind, p))
}

func (e *Engine) submitBackfill(kind, rel string) (string, bool, error) {
	sub, err := e.Submit(kind, rel, artifacts.Params{})
	return sub.JobID, sub.Skipped, err
}

// ListJobs returns jobs matching filter.
func (e *Engine) ListJobs(filter jobs.Filter) []jobs.Job {
	return e.jobs.List(filter)
}

// Job returns one job.
func (e *Engine) Job(id string) (jobs.Job, error) {
	j, ok := e.jobs.Get(id)
	if !ok {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return j, nil
}

// Cancel cancels a job and kills its subprocesses.
func (e *Engine) Cancel(id string) error {
	if _, ok := e.jobs.Get(id); !ok {
		return jobs.ErrNotFound
	}
	e.harness.Cancel(id)
	return nil
}

// Exists reports whether an artifact is already present.
func (e *Engine) Exists(ctx context.Context, kind, target string) (bool, error) {
	rel, err := e.validate(kind, target, artifacts.Params{})
	if err != nil {
		return false, err
	}
	return e.gen.Exists(ctx, kind, rel)
}

// ArtifactPath returns the primary sidecar file for (kind, target).
func (e *Engine) ArtifactPath(kind, target string) (string, error) {
	files, err := e.ArtifactFiles(kind, target)
	if err != nil {
		return "", err
	}
	return files[0], nil
}

// ArtifactFiles returns every sidecar file for (kind, target), primary first.
func (e *Engine) ArtifactFiles(kind, target string) ([]string, error) {
	rel, err := e.validate(kind, target, artifacts.Params{})
	if err != nil {
		return nil, err
	}
	files := e.gen.Store().Paths(kind, rel)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s has no file", artifacts.ErrUnsupportedKind, kind)
	}
	return files, nil
}

// Duplicates clusters the indexed fingerprints under scope.
func (e *Engine) Duplicates(ctx context.Context, scope string, recursive bool, opts dupes.Options) (dupes.Report, error) {
	if opts.MinSimilarity == 0 && opts.Threshold == 0 {
		opts.MinSimilarity = e.cfg.DuplicateMinSimilarity
	}
	return dupes.Scan(ctx, e.index, keylock.Normalize(scope), recursive, opts)
}

// Coverage counts present artifacts per kind under base.
func (e *Engine) Coverage(ctx context.Context, base string, kinds []string) (map[string][]string, []coverage.Count, error) {
	return e.coverage.Missing(ctx, keylock.Normalize(base), kinds)
}

// Videos lists the library videos under base in path order.
func (e *Engine) Videos(ctx context.Context, base string) ([]library.File, error) {
	return e.walker.Walk(ctx, keylock.Normalize(base))
}

// PickNext returns the next missing artifact under base.
func (e *Engine) PickNext(ctx context.Context, base string, kinds []string) (kind, rel string, ok bool, err error) {
	return e.coverage.PickNext(ctx, keylock.Normalize(base), kinds)
}

// IdleStatus reports the idle scheduler state.
func (e *Engine) IdleStatus() idle.Status {
	return e.idle.Status()
}

// Sweep runs one reaper pass immediately.
func (e *Engine) Sweep() []string {
	return e.reaper.Sweep(time.Now())
}

// FFmpegAvailable reports whether both tools resolve.
func (e *Engine) FFmpegAvailable() bool {
	return e.runner.Available()
}

// GetStats implements metrics.StatsProvider.
func (e *Engine) GetStats() metrics.Stats {
	byState := make(map[string]int)
	for state, n := range e.jobs.CountByState() {
		byState[string(state)] = n
	}
	hashes, err := e.index.Count(context.Background())
	if err != nil {
		logging.Debug("hash index count failed: %v", err)
	}
	return metrics.Stats{
		JobsByState:     byState,
		LimiterInUse:    e.limiter.InUse(),
		LimiterWaiting:  e.limiter.Waiting(),
		LimiterCapacity: e.limiter.Capacity(),
		Subprocesses:    e.procs.Count(),
		HashEntries:     hashes,
	}
}
