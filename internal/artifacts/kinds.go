package artifacts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedKind is returned for an artifact kind no worker handles.
var ErrUnsupportedKind = errors.New("unsupported artifact kind")

// ErrInvalidParams is returned for generation params outside their limits.
var ErrInvalidParams = errors.New("invalid artifact params")

// Artifact kinds.
const (
	KindMetadata  = "metadata"
	KindThumbnail = "thumbnail"
	KindPreview   = "preview"
	KindSprites   = "sprites"
	KindPhash     = "phash"
	KindHeatmap   = "heatmap"
	KindSubtitles = "subtitles"
	KindFaces     = "faces"
)

// Priority is the order in which backfill covers the library: a kind is
// only attempted once every earlier kind is complete.
var Priority = []string{
	KindMetadata,
	KindThumbnail,
	KindPreview,
	KindSprites,
	KindPhash,
	KindHeatmap,
	KindSubtitles,
	KindFaces,
}

// Valid reports whether kind names a known artifact.
func Valid(kind string) bool {
	for _, k := range Priority {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseKinds parses a comma-separated kind list, keeping the given order and
// dropping duplicates. An empty string yields Priority.
func ParseKinds(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]string(nil), Priority...), nil
	}
	seen := make(map[string]bool)
	var kinds []string
	for _, part := range strings.Split(s, ",") {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" || seen[k] {
			continue
		}
		if !Valid(k) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, k)
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// SortByPriority orders kinds by Priority, unknown kinds last.
func SortByPriority(kinds []string) []string {
	rank := make(map[string]int, len(Priority))
	for i, k := range Priority {
		rank[k] = i
	}
	out := make([]string, 0, len(kinds))
	for _, k := range Priority {
		for _, want := range kinds {
			if want == k {
				out = append(out, k)
				break
			}
		}
	}
	for _, k := range kinds {
		if _, ok := rank[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
