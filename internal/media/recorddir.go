package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidateRecordDir makes sure dir can hold recordings, creating it when it
// does not exist yet. It returns the absolute path. An empty dir is valid and
// means nothing is recorded.
func ValidateRecordDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s: failed to get absolute path: %w", dir, err)
	}

	stat, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return "", fmt.Errorf("%s: cannot create record directory: %w", dir, err)
		}
	case err != nil:
		return "", fmt.Errorf("%s: failed to stat record directory: %w", dir, err)
	case !stat.IsDir():
		return "", fmt.Errorf("%s: is not a directory", dir)
	}

	// Probe with a real file; permission bits lie on some mounts.
	probe, err := os.CreateTemp(absPath, ".doorcall-probe-*")
	if err != nil {
		return "", fmt.Errorf("%s: record directory is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return absPath, nil
}
