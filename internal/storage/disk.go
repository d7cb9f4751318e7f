package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Layout describes where a content record's analysis files live on disk:
// <root>/<content id>/<engine>/<content id>_<i>.<ext> for segment artifacts
// and <content id>_tagged_text.xml next to them.
type Layout struct {
	Root   string
	Engine string
	Ext    string
}

// ContentDir returns the storage directory of a content record.
func (l Layout) ContentDir(contentID string) string {
	return filepath.Join(l.Root, contentID)
}

// EngineDir returns the directory holding a record's artifacts, given the
// record's storage directory.
func (l Layout) EngineDir(contentPath string) string {
	return filepath.Join(contentPath, l.Engine)
}

// ArtifactPath returns the path of segment index's artifact.
func (l Layout) ArtifactPath(contentPath, contentID string, index int) string {
	return filepath.Join(l.EngineDir(contentPath), fmt.Sprintf("%s_%d.%s", contentID, index, l.Ext))
}

// TaggedTextPath returns the path of the markup artifact.
func (l Layout) TaggedTextPath(contentPath, contentID string) string {
	return filepath.Join(l.EngineDir(contentPath), contentID+"_tagged_text.xml")
}

// ResetEngineDir removes the artifact directory with everything in it and
// recreates it empty.
func (l Layout) ResetEngineDir(contentPath string) (string, error) {
	dir := l.EngineDir(contentPath)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; errors during walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
