package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrRootNotFound is returned by FindRoot when no profile marker exists
// between startDir and the filesystem root.
var ErrRootNotFound = errors.New("profile root not found")

// FindRoot walks upwards from startDir looking for a profile marker: the
// system directory (".owlet" when systemDir is empty) or an owlet.db file.
func FindRoot(startDir, systemDir string) (string, error) {
	if systemDir == "" {
		systemDir = ".owlet"
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if hasFile(dir, systemDir) || hasFile(dir, "owlet.db") {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}
		dir = parent
	}
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
