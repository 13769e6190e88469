package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jaa/ymd/internal/pending"
)

// FindExistingFile locates a downloaded track by stem in dir, whatever its
// extension ended up being. Sidecars and transient artifacts never match.
func FindExistingFile(dir string, stem string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stem+".") {
			continue
		}
		if strings.Contains(name, ".temp.") || strings.HasSuffix(name, pending.SidecarSuffix) {
			continue
		}
		return filepath.Join(dir, name)
	}
	return ""
}

// FindExistingFileRecursive searches the whole library tree for a stem, used
// when the owning directory is unknown (historic log bootstrap).
func FindExistingFileRecursive(baseDir string, stem string) string {
	found := ""
	filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, stem+".") {
			return nil
		}
		if strings.Contains(name, ".temp.") || strings.HasSuffix(name, pending.SidecarSuffix) {
			return nil
		}
		found = path
		return nil
	})
	return found
}
