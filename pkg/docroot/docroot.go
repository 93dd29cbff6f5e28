// Package docroot resolves request paths against a document root and opens
// the files beneath it.
//
// Resolve is the only place URL paths become file paths. It decodes percent
// escapes before applying dot segments, so an encoded "..", however
// spelled, cannot climb above the root.
package docroot

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned when no file exists at the resolved path.
	ErrNotFound = errors.New("docroot: not found")

	// ErrEscapesRoot is returned for paths that resolve outside the root or
	// contain characters never valid in a document path.
	ErrEscapesRoot = errors.New("docroot: path escapes document root")
)

// Root opens files by root-relative, slash-separated path.
type Root interface {
	// Open returns the file contents and its size in bytes.
	Open(ctx context.Context, rel string) (io.ReadCloser, int64, error)
}

// Resolve converts a request path into a clean root-relative path with no
// leading slash. ".." segments that stay inside the root are applied;
// any that would leave it fail with ErrEscapesRoot.
func Resolve(urlPath string) (string, error) {
	decoded, err := url.PathUnescape(urlPath)
	if err != nil {
		return "", ErrEscapesRoot
	}
	if strings.ContainsAny(decoded, "\x00\\") {
		return "", ErrEscapesRoot
	}

	var parts []string
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", ErrEscapesRoot
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/"), nil
}

// Ext returns the extension of rel without the dot, or "" if it has none.
func Ext(rel string) string {
	base := rel
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i+1:]
}

// ReadAll opens rel and reads it completely.
func ReadAll(ctx context.Context, root Root, rel string) ([]byte, error) {
	rc, _, err := root.Open(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
