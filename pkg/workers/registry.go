package workers

import (
	"sort"
	"strings"
	"sync"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
)

// ExtPrefix is the path prefix that reaches a worker by name.
const ExtPrefix = "/ext/"

// Worker produces a response through a request context.
type Worker interface {
	Process(rc *httpctx.RequestContext) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(rc *httpctx.RequestContext) error

// Process calls f(rc).
func (f WorkerFunc) Process(rc *httpctx.RequestContext) error {
	return f(rc)
}

// Registry maps worker names and bound paths to workers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Worker
	byPath map[string]Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Worker),
		byPath: make(map[string]Worker),
	}
}

// Default returns a registry holding the built-in workers.
func Default() *Registry {
	r := NewRegistry()
	r.Register("HelloWorker", HelloWorker{})
	r.Register("EchoParams", EchoParams{})
	r.Register("CircleWorker", CircleWorker{Size: 200})
	r.Register("SumWorker", SumWorker{})
	r.Register("Home", Home{})
	r.Register("BgColorWorker", BgColorWorker{})
	return r
}

// Register adds or replaces a named worker.
func (r *Registry) Register(name string, w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = w
}

// Bind maps an exact URL path to a registered worker name.
func (r *Registry) Bind(path, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byName[name]
	if !ok {
		return errors.New("E503").WithDetailf("%s = %s", path, name)
	}
	r.byPath[path] = w
	return nil
}

// BindAll binds every path = name entry, stopping at the first unknown name.
func (r *Registry) BindAll(bindings map[string]string) error {
	paths := make([]string, 0, len(bindings))
	for p := range bindings {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := r.Bind(p, bindings[p]); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds the worker for a URL path, by binding or by /ext/<Name>.
func (r *Registry) Lookup(path string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.byPath[path]; ok {
		return w, true
	}
	if name, ok := strings.CutPrefix(path, ExtPrefix); ok && name != "" {
		w, ok := r.byName[name]
		return w, ok
	}
	return nil, false
}

// Names returns the registered worker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
