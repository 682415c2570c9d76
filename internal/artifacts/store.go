package artifacts

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"

	"media-worker/internal/keylock"
)

// extensions lists the sidecar files each kind produces. The first entry is
// the primary file; phash lives in the hash index and has none.
var extensions = map[string][]string{
	KindMetadata:  {".json"},
	KindThumbnail: {".jpg"},
	KindPreview:   {".mp4"},
	KindSprites:   {".jpg", ".vtt"},
	KindHeatmap:   {".png"},
	KindSubtitles: {".vtt"},
	KindFaces:     {".json"},
}

// Store maps (kind, library path) to sidecar files under the cache
// directory: <cache>/<kind>/<md5(path)><ext>.
type Store struct {
	root string
}

// NewStore returns a store rooted at cacheDir.
func NewStore(cacheDir string) *Store {
	return &Store{root: cacheDir}
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// Name returns the sidecar base name (without extension) for rel.
func Name(rel string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(keylock.Normalize(rel))))
}

// Paths returns every sidecar file for kind, primary first.
func (s *Store) Paths(kind, rel string) []string {
	exts := extensions[kind]
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, filepath.Join(s.root, kind, Name(rel)+ext))
	}
	return out
}

// Path returns the primary sidecar file for kind, or "" when the kind keeps
// no sidecar.
func (s *Store) Path(kind, rel string) string {
	if paths := s.Paths(kind, rel); len(paths) > 0 {
		return paths[0]
	}
	return ""
}

// Exists reports whether every sidecar file for kind is present and
// non-empty.
func (s *Store) Exists(kind, rel string) bool {
	paths := s.Paths(kind, rel)
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// Remove deletes the sidecars for kind. Missing files are not an error.
func (s *Store) Remove(kind, rel string) error {
	for _, p := range s.Paths(kind, rel) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ensureDir creates the per-kind directory.
func (s *Store) ensureDir(kind string) error {
	return os.MkdirAll(filepath.Join(s.root, kind), 0o755)
}
