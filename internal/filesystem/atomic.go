package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"media-worker/internal/logging"
)

// TempPath returns a sibling of dest that a producer can write to before the
// result is committed with Commit. The name keeps dest's extension so tools
// that infer the output format from it (ffmpeg) still work.
func TempPath(dest string) string {
	dir, base := filepath.Split(dest)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp%s", base[:len(base)-len(ext)], os.Getpid(), ext))
}

// Commit renames tmp over dest. Readers never observe a partially written
// artifact because the rename is atomic within one filesystem.
func Commit(tmp, dest string) error {
	if err := os.Rename(tmp, dest); err != nil {
		Discard(tmp)
		return fmt.Errorf("commit %s: %w", filepath.Base(dest), err)
	}
	return nil
}

// Discard removes a temporary output, ignoring a missing file.
func Discard(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove temporary file %s: %v", tmp, err)
	}
}

// WriteFileAtomic writes data to path via a temporary sibling and rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}
	tmp := TempPath(path)
	if err := os.WriteFile(tmp, data, perm); err != nil {
		Discard(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return Commit(tmp, path)
}
