package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-worker/internal/logging"
	"media-worker/internal/mediatypes"
)

// File is one video in the library.
type File struct {
	// Path is relative to the library root, slash-separated.
	Path    string
	Size    int64
	ModTime time.Time
}

// WalkerConfig configures the parallel directory walker
type WalkerConfig struct {
	// NumWorkers is the number of parallel stat workers
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
}

// DefaultWalkerConfig returns defaults that are safe for NFS-mounted libraries.
// SCAN_WORKERS overrides the worker count.
func DefaultWalkerConfig() WalkerConfig {
	numWorkers := 3
	if override := os.Getenv("SCAN_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			numWorkers = count
		}
	}

	return WalkerConfig{
		NumWorkers:    numWorkers,
		ChannelBuffer: 1000,
		SkipHidden:    true,
	}
}

type fileJob struct {
	entry   fs.DirEntry
	relPath string
}

// Walker lists the videos under a root directory.
type Walker struct {
	config WalkerConfig
	root   string

	filesFound  atomic.Int64
	errorsCount atomic.Int64
}

// NewWalker creates a walker for root.
func NewWalker(root string, config WalkerConfig) *Walker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	return &Walker{config: config, root: root}
}

// Root returns the library root directory.
func (w *Walker) Root() string {
	return w.root
}

// Walk returns every video under base (relative to the root; "" for the
// whole library), sorted by path so repeated scans visit files in the same
// order. Unreadable entries are logged and skipped.
func (w *Walker) Walk(ctx context.Context, base string) ([]File, error) {
	start := time.Now()
	dir := filepath.Join(w.root, filepath.FromSlash(base))

	jobs := make(chan fileJob, w.config.ChannelBuffer)
	results := make(chan File, w.config.ChannelBuffer)

	var wg sync.WaitGroup
	for i := 0; i < w.config.NumWorkers; i++ {
		wg.Add(1)
		go w.worker(ctx, jobs, results, &wg)
	}

	var files []File
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for f := range results {
			files = append(files, f)
		}
	}()

	err := w.enqueue(ctx, dir, jobs)
	close(jobs)
	wg.Wait()
	close(results)
	<-collected

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logging.Debug("Library walk of %q: %d videos in %v (errors: %d)",
		base, len(files), time.Since(start).Round(time.Millisecond), w.errorsCount.Load())
	return files, nil
}

func (w *Walker) enqueue(ctx context.Context, dir string, jobs chan<- fileJob) error {
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			w.errorsCount.Add(1)
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if w.config.SkipHidden && path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !mediatypes.IsVideo(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			//nolint:nilerr // skip this file but keep walking
			return nil
		}

		select {
		case jobs <- fileJob{entry: d, relPath: filepath.ToSlash(rel)}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (w *Walker) worker(ctx context.Context, jobs <-chan fileJob, results chan<- File, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}
		info, err := job.entry.Info()
		if err != nil {
			w.errorsCount.Add(1)
			logging.Debug("Error getting info for %s: %v", job.relPath, err)
			continue
		}
		w.filesFound.Add(1)
		results <- File{Path: job.relPath, Size: info.Size(), ModTime: info.ModTime()}
	}
}

// Stats returns cumulative counts across walks.
func (w *Walker) Stats() (files, errors int64) {
	return w.filesFound.Load(), w.errorsCount.Load()
}
