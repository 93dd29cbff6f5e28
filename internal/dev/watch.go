package dev

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vango-dev/smarthttp/pkg/script"
)

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"*.tmp",
	"*.swp",
	"*~",
}

// Invalidator drops a compiled script by its root-relative path.
type Invalidator interface {
	Invalidate(rel string)
}

// Change describes one processed file change.
type Change struct {
	// Path is relative to the document root, slash separated.
	Path string

	// Script is set when Path has the script extension.
	Script bool

	// Removed is set when the file no longer exists.
	Removed bool

	// Err holds the compile error of a changed script.
	Err error
}

// WatcherConfig configures the document root watcher.
type WatcherConfig struct {
	// Root is the document root directory.
	Root string

	// ScriptExt is the script extension without the dot.
	ScriptExt string

	// Ignore patterns to skip (globs or path segments).
	Ignore []string

	// Debounce coalesces bursts of events for the same file.
	Debounce time.Duration
}

// Watcher recompiles scripts under the document root as they change.
type Watcher struct {
	config   WatcherConfig
	cache    Invalidator
	reload   *ReloadServer
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	onChange func(Change)
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher. cache and reload may be nil.
func NewWatcher(config WatcherConfig, cache Invalidator, reload *ReloadServer, logger *slog.Logger) *Watcher {
	if config.Debounce == 0 {
		config.Debounce = 50 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	config.ScriptExt = strings.TrimPrefix(config.ScriptExt, ".")
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		config: config,
		cache:  cache,
		reload: reload,
		logger: logger.With("component", "watcher"),
		done:   make(chan struct{}),
	}
}

// OnChange sets a callback run after each processed change.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start adds watches for every directory under the root and processes
// events in the background until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.addRecursive(w.config.Root)

	go w.loop(ctx)
	w.logger.Info("watching document root", "root", w.config.Root)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}

func (w *Watcher) addRecursive(dir string) {
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != dir && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("watch failed", "dir", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRecursive(event.Name)
					continue
				}
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.config.Debounce)
		case <-timer.C:
			for name := range pending {
				w.process(name)
			}
			clear(pending)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// process invalidates, recompiles, and notifies for one changed file.
func (w *Watcher) process(name string) {
	rel, err := filepath.Rel(w.config.Root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	change := Change{
		Path:   filepath.ToSlash(rel),
		Script: w.config.ScriptExt != "" && strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), w.config.ScriptExt),
	}

	src, readErr := os.ReadFile(name)
	if readErr != nil {
		change.Removed = os.IsNotExist(readErr)
		if !change.Removed {
			return
		}
	}

	if change.Script {
		if w.cache != nil {
			w.cache.Invalidate(change.Path)
		}
		if !change.Removed {
			_, change.Err = script.Compile(change.Path, string(src))
		}
	}

	if change.Err != nil {
		w.logger.Warn("script compile failed", "file", change.Path, "error", change.Err)
		if w.reload != nil {
			w.reload.NotifyError(change.Path, change.Err.Error())
		}
	} else {
		w.logger.Info("file changed", "file", change.Path, "removed", change.Removed)
		if w.reload != nil {
			w.reload.ClearError()
			w.reload.NotifyReload(change.Path)
		}
	}

	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(change)
	}
}

// shouldIgnore checks if a path matches an ignore pattern.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}
		if strings.ContainsAny(pattern, "*?[") {
			if strings.Contains(pattern, "/") {
				if matched, _ := path.Match(pattern, normalized); matched {
					return true
				}
			} else if matched, _ := filepath.Match(pattern, name); matched {
				return true
			}
			continue
		}
		if pathHasSegment(normalized, pattern) {
			return true
		}
	}
	return false
}

func pathHasSegment(p, segment string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
