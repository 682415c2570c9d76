package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"media-worker/internal/artifacts"
	"media-worker/internal/engine"
	"media-worker/internal/startup"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

type task struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

type taskResult struct {
	task
	JobID    string        `json:"job_id,omitempty"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Files    []string      `json:"files,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

const (
	statusGenerated = "generated"
	statusCached    = "cached"
	statusSkipped   = "skipped"
	statusQueued    = "queued"
	statusFailed    = "failed"
)

type generateOptions struct {
	kinds       string
	base        string
	onlyMissing bool
	force       bool
	parallel    int
	json        bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	opts := generateOptions{kinds: "thumbnail", parallel: 2}

	cmd := &cobra.Command{
		Use:   "generate [path...]",
		Short: "Generate artifacts for videos",
		Long: `Generate artifacts for the given library paths, or for every video under
--base when no paths are given. Kinds run in priority order per video.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKindFlag(opts.kinds)
			if err != nil {
				return err
			}
			if len(kinds) == 0 {
				return errors.New("no kinds selected")
			}
			if opts.parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", opts.parallel)
			}
			if ctx.hasServer() {
				return runRemoteGenerate(cmd, ctx, kinds, args, opts)
			}
			return runLocalGenerate(cmd, ctx, kinds, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.kinds, "kinds", "k", opts.kinds, "Comma-separated artifact kinds, or \"all\"")
	cmd.Flags().StringVar(&opts.base, "base", "", "Library subdirectory to walk when no paths are given")
	cmd.Flags().BoolVar(&opts.onlyMissing, "only-missing", false, "Skip artifacts that already exist")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Regenerate even when the artifact exists")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", opts.parallel, "Jobs in flight at once")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Emit JSON instead of a table")

	return cmd
}

func runLocalGenerate(cmd *cobra.Command, cc *commandContext, kinds, args []string, opts generateOptions) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := startup.AcquireInstanceLock(cfg.CacheDir)
	if err != nil {
		if errors.Is(err, startup.ErrCacheLocked) {
			return fmt.Errorf("%w; a daemon is using this cache, rerun with --server", err)
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	return cc.withEngine(cmd.Context(), func(eng *engine.Engine) error {
		tasks, err := planLocal(cmd.Context(), eng, kinds, args, opts)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to generate")
			return nil
		}

		bar := newProgress(cmd.ErrOrStderr(), len(tasks))
		params := artifacts.Params{Force: opts.force}
		results := runTasks(cmd.Context(), tasks, opts.parallel, bar, func(ctx context.Context, t task) taskResult {
			return generateOne(ctx, eng, t, params)
		})
		bar.done()
		return reportResults(cmd.OutOrStdout(), results, opts.json)
	})
}

func generateOne(ctx context.Context, eng *engine.Engine, t task, params artifacts.Params) taskResult {
	start := time.Now()
	res, err := eng.Generate(ctx, t.Kind, t.Target, params)
	r := taskResult{task: t, JobID: res.JobID, Duration: time.Since(start)}
	switch {
	case err != nil:
		r.Status = statusFailed
		r.Error = err.Error()
	case res.Skipped:
		r.Status = statusSkipped
	default:
		r.Status = statusGenerated
		if out, ok := res.Value.(*artifacts.Output); ok && out != nil {
			r.Files = out.Files
			if out.Cached {
				r.Status = statusCached
			}
		}
	}
	return r
}

// planLocal expands paths (or the walk of base) into tasks, kinds in priority
// order per video.
func planLocal(ctx context.Context, eng *engine.Engine, kinds, paths []string, opts generateOptions) ([]task, error) {
	if len(paths) == 0 {
		files, err := eng.Videos(ctx, opts.base)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
	}
	var exists func(kind, target string) bool
	if opts.onlyMissing && !opts.force {
		exists = func(kind, target string) bool {
			ok, err := eng.Exists(ctx, kind, target)
			return err == nil && ok
		}
	}
	return planTasks(kinds, paths, exists), nil
}

func planTasks(kinds, paths []string, exists func(kind, target string) bool) []task {
	ordered := artifacts.SortByPriority(kinds)
	var tasks []task
	for _, p := range paths {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		for _, k := range ordered {
			if exists != nil && exists(k, p) {
				continue
			}
			tasks = append(tasks, task{Kind: k, Target: p})
		}
	}
	return tasks
}

// runTasks runs fn over tasks with at most parallel in flight. Results keep
// task order. A canceled context stops new tasks from starting.
func runTasks(ctx context.Context, tasks []task, parallel int, p *progress, fn func(context.Context, task) taskResult) []taskResult {
	results := make([]taskResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, t := range tasks {
		if gctx.Err() != nil {
			results[i] = taskResult{task: t, Status: statusFailed, Error: gctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			results[i] = fn(gctx, t)
			p.step(results[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runRemoteGenerate(cmd *cobra.Command, cc *commandContext, kinds, args []string, opts generateOptions) error {
	if len(args) == 0 {
		return errors.New("--server needs explicit paths; the daemon's idle scheduler covers whole-library backfill")
	}
	client, err := cc.client()
	if err != nil {
		return err
	}
	tasks := planTasks(kinds, args, nil)
	params := artifacts.Params{Force: opts.force}
	bar := newProgress(cmd.ErrOrStderr(), len(tasks))
	results := runTasks(cmd.Context(), tasks, opts.parallel, bar, func(ctx context.Context, t task) taskResult {
		start := time.Now()
		sub, err := client.Submit(ctx, t.Kind, t.Target, params)
		r := taskResult{task: t, JobID: sub.JobID, Duration: time.Since(start)}
		switch {
		case err != nil:
			r.Status = statusFailed
			r.Error = err.Error()
		case sub.Skipped:
			r.Status = statusSkipped
		default:
			r.Status = statusQueued
		}
		return r
	})
	bar.done()
	return reportResults(cmd.OutOrStdout(), results, opts.json)
}

// progress prints a single updating line when w is a terminal.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	total   int
	n       int
	failed  int
	start   time.Time
}

func newProgress(w io.Writer, total int) *progress {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	return &progress{w: w, enabled: enabled, total: total, start: time.Now()}
}

func (p *progress) step(r taskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	if r.Status == statusFailed {
		p.failed++
	}
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\r\033[K[%d/%d] %s %s", p.n, p.total, r.Kind, r.Target)
}

func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\r\033[K%d jobs in %s, %d failed\n", p.n, time.Since(p.start).Round(time.Millisecond), p.failed)
}

type kindSummary struct {
	Kind      string        `json:"kind"`
	Generated int           `json:"generated"`
	Cached    int           `json:"cached"`
	Skipped   int           `json:"skipped"`
	Queued    int           `json:"queued"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

func summarize(results []taskResult) []kindSummary {
	byKind := make(map[string]*kindSummary)
	for _, r := range results {
		s, ok := byKind[r.Kind]
		if !ok {
			s = &kindSummary{Kind: r.Kind}
			byKind[r.Kind] = s
		}
		switch r.Status {
		case statusGenerated:
			s.Generated++
		case statusCached:
			s.Cached++
		case statusSkipped:
			s.Skipped++
		case statusQueued:
			s.Queued++
		case statusFailed:
			s.Failed++
		}
		s.Elapsed += r.Duration
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	kinds = artifacts.SortByPriority(kinds)
	out := make([]kindSummary, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, *byKind[k])
	}
	return out
}

func reportResults(w io.Writer, results []taskResult, asJSON bool) error {
	summary := summarize(results)
	failed := 0
	for _, r := range results {
		if r.Status == statusFailed {
			failed++
		}
	}
	if asJSON {
		if err := writeJSON(w, struct {
			Results []taskResult  `json:"results"`
			Summary []kindSummary `json:"summary"`
		}{results, summary}); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(summary))
		for _, s := range summary {
			rows = append(rows, []string{
				s.Kind,
				humanize.Comma(int64(s.Generated)),
				humanize.Comma(int64(s.Cached)),
				humanize.Comma(int64(s.Skipped)),
				humanize.Comma(int64(s.Queued)),
				humanize.Comma(int64(s.Failed)),
				s.Elapsed.Round(time.Millisecond).String(),
			})
		}
		fmt.Fprint(w, renderTable(
			[]string{"Kind", "Generated", "Cached", "Skipped", "Queued", "Failed", "Time"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		var failures []taskResult
		for _, r := range results {
			if r.Status == statusFailed {
				failures = append(failures, r)
			}
		}
		sort.SliceStable(failures, func(i, j int) bool { return failures[i].Target < failures[j].Target })
		for _, r := range failures {
			fmt.Fprintf(w, "failed: %s %s: %s\n", r.Kind, r.Target, r.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}
