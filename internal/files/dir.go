package files

import (
	"fmt"
	"os"
)

// EnsureDir creates dir (and parents) with the given permissions, refusing
// any path that passes through a symlink.
func EnsureDir(dir string, perms os.FileMode) error {
	if err := RejectSymlinkPath(dir); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("not a directory: %s", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if err := os.MkdirAll(dir, perms); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
