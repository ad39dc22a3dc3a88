package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// atomicWriteFile writes data to a uuid-suffixed temp file in the same
// directory as path, then renames it into place. The rename is atomic on
// any POSIX filesystem, so a reader never observes a partially written
// artifact, even though the format makes no crash-atomicity promise across
// the manifest and the other artifacts as a group.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
