package session

import (
	"sort"
	"sync"
)

// Params is a session's persistent parameter map. It is safe for use by
// concurrent requests of the same client.
type Params struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewParams returns an empty map, optionally seeded with initial values.
func NewParams(initial map[string]string) *Params {
	p := &Params{m: make(map[string]string, len(initial))}
	for k, v := range initial {
		p.m[k] = v
	}
	return p
}

func (p *Params) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.m[key]
	return v, ok
}

func (p *Params) Set(key, value string) {
	p.mu.Lock()
	p.m[key] = value
	p.mu.Unlock()
}

func (p *Params) Delete(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}

// Keys returns the parameter names in sorted order.
func (p *Params) Keys() []string {
	p.mu.RLock()
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the map.
func (p *Params) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}
