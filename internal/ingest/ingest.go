package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/media"
)

// MaxFileBytes caps a single upload.
const MaxFileBytes = 50 * 1024 * 1024

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = fmt.Errorf("file exceeds %d bytes", MaxFileBytes)
)

// Skipped records an input that was not turned into an upload.
type Skipped struct {
	Path   string
	Reason string
}

// Result is the outcome of Collect.
type Result struct {
	Uploads []media.Upload
	Skipped []Skipped
}

// Collect reads every image reachable from paths. Files are read directly,
// directories are walked recursively in lexical order with hidden entries
// ignored. A missing top-level path is an error; per-file problems are
// reported in Result.Skipped.
func Collect(paths []string) (Result, error) {
	var res Result
	seen := make(map[string]bool)

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true

		up, err := readFile(path)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Path: path, Reason: err.Error()})
			logger.Debug("Input skipped", "path", path, "reason", err)
			return
		}
		res.Uploads = append(res.Uploads, up)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return res, fmt.Errorf("failed to access input %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				res.Skipped = append(res.Skipped, Skipped{Path: path, Reason: walkErr.Error()})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path != p && isHidden(d.Name()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("failed to scan %s: %w", p, err)
		}
	}
	return res, nil
}

// FromReader builds an upload from a stream, as used by multipart uploads.
func FromReader(name string, r io.Reader) (media.Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return media.Upload{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) > MaxFileBytes {
		return media.Upload{}, ErrTooLarge
	}
	return newUpload(name, name, data)
}

func readFile(path string) (media.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return media.Upload{}, err
	}
	if info.Size() > MaxFileBytes {
		return media.Upload{}, ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return media.Upload{}, err
	}
	return newUpload(filepath.Base(path), path, data)
}

func newUpload(name, ref string, data []byte) (media.Upload, error) {
	if len(data) == 0 {
		return media.Upload{}, ErrNotImage
	}
	img := media.NewImage(name, data)
	if !media.IsImage(img.MIMEType) {
		return media.Upload{}, ErrNotImage
	}
	return media.Upload{Name: name, SourceRef: ref, Image: img}, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
