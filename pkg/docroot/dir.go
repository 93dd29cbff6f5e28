package docroot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a document root on the local filesystem.
type Dir struct {
	path string
}

// NewDir returns a Dir rooted at path, which must be an existing directory.
func NewDir(path string) (*Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("docroot: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("docroot: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docroot: %s is not a directory", abs)
	}
	return &Dir{path: abs}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string {
	return d.path
}

// Rel converts an absolute filesystem path under the root back into a
// root-relative slash path.
func (d *Dir) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(d.path, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Open opens rel beneath the root. Directories count as not found.
func (d *Dir) Open(_ context.Context, rel string) (io.ReadCloser, int64, error) {
	full := filepath.Join(d.path, filepath.FromSlash(rel))
	if _, ok := d.Rel(full); !ok {
		return nil, 0, ErrEscapesRoot
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, ErrNotFound
	}
	return f, info.Size(), nil
}
