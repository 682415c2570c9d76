package coverage

import (
	"context"
	"fmt"

	"media-worker/internal/artifacts"
	"media-worker/internal/library"
	"media-worker/internal/logging"
)

// Lister enumerates library videos in a stable order.
type Lister interface {
	Walk(ctx context.Context, base string) ([]library.File, error)
}

// Prober reports whether an artifact already exists.
type Prober interface {
	Exists(ctx context.Context, kind, rel string) (bool, error)
}

// ExcludeFunc hides (kind, path) pairs from PickNext, e.g. ones that
// recently failed.
type ExcludeFunc func(kind, rel string) bool

// Scanner finds missing artifacts.
type Scanner struct {
	files   Lister
	probe   Prober
	exclude ExcludeFunc
}

// New creates a scanner. exclude may be nil.
func New(files Lister, probe Prober, exclude ExcludeFunc) *Scanner {
	return &Scanner{files: files, probe: probe, exclude: exclude}
}

// PickNext returns the first missing (kind, path) pair under base. Kinds are
// tried in priority order and files in path order; a probe error on one file
// is logged and that file skipped.
func (s *Scanner) PickNext(ctx context.Context, base string, kinds []string) (kind, rel string, ok bool, err error) {
	files, err := s.files.Walk(ctx, base)
	if err != nil {
		return "", "", false, fmt.Errorf("list %q: %w", base, err)
	}
	for _, k := range artifacts.SortByPriority(kinds) {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return "", "", false, err
			}
			if s.exclude != nil && s.exclude(k, f.Path) {
				continue
			}
			exists, err := s.probe.Exists(ctx, k, f.Path)
			if err != nil {
				logging.Debug("coverage: probing %s for %s: %v", k, f.Path, err)
				continue
			}
			if !exists {
				return k, f.Path, true, nil
			}
		}
	}
	return "", "", false, nil
}

// Count is coverage for one kind.
type Count struct {
	Kind    string `json:"kind"`
	Present int    `json:"present"`
	Total   int    `json:"total"`
}

// Missing lists the paths under base lacking each kind, in priority order.
func (s *Scanner) Missing(ctx context.Context, base string, kinds []string) (map[string][]string, []Count, error) {
	files, err := s.files.Walk(ctx, base)
	if err != nil {
		return nil, nil, fmt.Errorf("list %q: %w", base, err)
	}
	missing := make(map[string][]string)
	var counts []Count
	for _, k := range artifacts.SortByPriority(kinds) {
		c := Count{Kind: k, Total: len(files)}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			exists, err := s.probe.Exists(ctx, k, f.Path)
			if err == nil && exists {
				c.Present++
				continue
			}
			missing[k] = append(missing[k], f.Path)
		}
		counts = append(counts, c)
	}
	return missing, counts, nil
}
