package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxNumberedSuffix = 99

// FreePath returns path if nothing exists there. Otherwise it tries
// name_2.ext through name_99.ext and finally a UUID-suffixed name. The bool
// reports whether the path was changed.
func FreePath(path string) (string, bool, error) {
	if path == "" {
		return "", false, errors.New("path is empty")
	}
	taken, err := exists(path)
	if err != nil || !taken {
		return path, false, err
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; i <= maxNumberedSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		taken, err := exists(candidate)
		if err != nil {
			return "", false, err
		}
		if !taken {
			return candidate, true, nil
		}
	}
	return fmt.Sprintf("%s_%s%s", base, uuid.NewString(), ext), true, nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
