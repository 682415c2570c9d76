package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-worker/internal/ffmpeg"
	"media-worker/internal/filesystem"
	"media-worker/internal/harness"
	"media-worker/internal/hashindex"
	"media-worker/internal/keylock"
	"media-worker/internal/logging"
)

// Output is the job result recorded for a finished artifact.
type Output struct {
	Kind   string   `json:"kind"`
	Target string   `json:"target"`
	Files  []string `json:"files,omitempty"`
	Cached bool     `json:"cached,omitempty"`
	Detail any      `json:"detail,omitempty"`
}

// Generator dispatches artifact work to the per-kind workers.
type Generator struct {
	mediaDir string
	store    *Store
	ff       *ffmpeg.Runner
	index    *hashindex.Store
}

// NewGenerator creates a generator reading videos under mediaDir. index may
// be nil, in which case phash is unavailable.
func NewGenerator(mediaDir string, store *Store, ff *ffmpeg.Runner, index *hashindex.Store) *Generator {
	return &Generator{
		mediaDir: mediaDir,
		store:    store,
		ff:       ff,
		index:    index,
	}
}

// Store returns the sidecar store.
func (g *Generator) Store() *Store {
	return g.store
}

// MediaDir returns the library root.
func (g *Generator) MediaDir() string {
	return g.mediaDir
}

// Source returns the absolute path of a library-relative file.
func (g *Generator) Source(rel string) string {
	return filepath.Join(g.mediaDir, filepath.FromSlash(keylock.Normalize(rel)))
}

// Exists reports whether the artifact for (kind, rel) is already present.
// For phash that means a current hash index entry.
func (g *Generator) Exists(ctx context.Context, kind, rel string) (bool, error) {
	switch {
	case kind == KindPhash:
		if g.index == nil {
			return false, fmt.Errorf("%w: %s (no hash index)", ErrUnsupportedKind, kind)
		}
		return g.index.IsCurrent(ctx, g.mediaDir, rel)
	case Valid(kind):
		return g.store.Exists(kind, rel), nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

// Func adapts Run to a harness work function for the job's target.
func (g *Generator) Func(kind string, p Params) harness.Func {
	return func(jc *harness.JobContext) (any, error) {
		return g.Run(jc, kind, jc.Target(), p)
	}
}

// Run generates one artifact. Existing artifacts are left alone unless
// p.Force is set.
func (g *Generator) Run(jc *harness.JobContext, kind, rel string, p Params) (*Output, error) {
	if !Valid(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()
	ctx := jc.Context()

	src := g.Source(rel)
	info, err := filesystem.StatWithRetry(ctx, src, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is not a regular file", rel)
	}

	if !p.Force {
		exists, err := g.Exists(ctx, kind, rel)
		if err != nil {
			return nil, err
		}
		if exists {
			jc.Log().Debug("%s already present for %s", kind, rel)
			return &Output{Kind: kind, Target: rel, Files: g.store.Paths(kind, rel), Cached: true}, nil
		}
	}
	if kind != KindPhash {
		if err := g.store.ensureDir(kind); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	start := time.Now()
	var detail any
	switch kind {
	case KindMetadata:
		detail, err = g.metadata(jc, rel, src)
	case KindThumbnail:
		detail, err = g.thumbnail(jc, rel, src, p)
	case KindPreview:
		detail, err = g.preview(jc, rel, src, p)
	case KindSprites:
		detail, err = g.sprites(jc, rel, src, p)
	case KindPhash:
		detail, err = g.phash(jc, rel, src)
	case KindHeatmap:
		detail, err = g.heatmap(jc, rel, src, p)
	case KindSubtitles:
		detail, err = g.subtitles(jc, rel, src)
	case KindFaces:
		detail, err = g.faces(jc, rel, src)
	}
	if err != nil {
		return nil, err
	}
	jc.Log().Info("generated %s for %s in %v", kind, rel, time.Since(start).Round(time.Millisecond))
	return &Output{Kind: kind, Target: rel, Files: g.store.Paths(kind, rel), Detail: detail}, nil
}

// probe returns the stream info for src, reading the metadata sidecar when
// one exists.
func (g *Generator) probe(ctx context.Context, rel, src string) (*ffmpeg.ProbeResult, error) {
	if data, err := os.ReadFile(g.store.Path(KindMetadata, rel)); err == nil {
		var pr ffmpeg.ProbeResult
		if err := json.Unmarshal(data, &pr); err == nil && pr.Duration > 0 {
			return &pr, nil
		}
		logging.Debug("ignoring unusable metadata sidecar for %s", rel)
	}
	pr, err := g.ff.Probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rel, err)
	}
	return pr, nil
}

// requireDuration probes src and rejects streams without a usable length.
func (g *Generator) requireDuration(ctx context.Context, rel, src string) (*ffmpeg.ProbeResult, error) {
	pr, err := g.probe(ctx, rel, src)
	if err != nil {
		return nil, err
	}
	if pr.Duration <= 0 {
		return nil, errors.New("video has no duration")
	}
	return pr, nil
}

// writeSidecar writes data atomically to the sidecar for kind at index i.
func (g *Generator) writeSidecar(kind, rel string, i int, data []byte) error {
	paths := g.store.Paths(kind, rel)
	if i >= len(paths) {
		return fmt.Errorf("%s has no sidecar %d", kind, i)
	}
	if err := filesystem.WriteFileAtomic(paths[i], data, 0o644); err != nil {
		return fmt.Errorf("write %s sidecar: %w", kind, err)
	}
	return nil
}
