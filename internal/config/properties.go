package config

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/vango-dev/smarthttp/internal/errors"
)

// LoadProperties reads a key = value file. Blank lines and lines starting
// with # are skipped; keys and values are trimmed.
func LoadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E500").WithDetail("No " + path + " found")
		}
		return nil, errors.New("E502").Wrap(err)
	}
	defer f.Close()
	return ParseProperties(f, path)
}

// ParseProperties parses key = value lines from r. The name is used in
// error locations.
func ParseProperties(r io.Reader, name string) (map[string]string, error) {
	props := make(map[string]string)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New("E502").
				WithPosition(name, line, 1).
				WithDetailf("expected key = value, got %q", text)
		}
		props[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.New("E502").Wrap(err)
	}
	return props, nil
}
