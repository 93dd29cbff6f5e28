package script

import (
	"context"
	"sync"

	"github.com/vango-dev/smarthttp/pkg/docroot"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/script/exec"
	"github.com/vango-dev/smarthttp/pkg/script/parser"
)

// DefaultCacheSize bounds the number of compiled documents kept.
const DefaultCacheSize = 500

// Compile lexes and parses src. The name appears in error locations.
func Compile(name, src string) (*parser.DocumentNode, error) {
	return parser.Parse(name, src)
}

// Run executes a compiled document against rc.
func Run(ctx context.Context, doc *parser.DocumentNode, rc *httpctx.RequestContext, opts ...exec.Option) error {
	return exec.NewEngine(doc, rc, opts...).Execute(ctx)
}

// Cache holds compiled documents keyed by root-relative path.
type Cache struct {
	mu      sync.RWMutex
	root    docroot.Root
	docs    map[string]*parser.DocumentNode
	maxSize int

	// epoch advances on every Invalidate or Purge; a compile that started
	// in an older epoch is returned but not stored.
	epoch uint64
}

// NewCache creates a cache reading sources from root. A maxSize of zero
// uses DefaultCacheSize.
func NewCache(root docroot.Root, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		root:    root,
		docs:    make(map[string]*parser.DocumentNode),
		maxSize: maxSize,
	}
}

// Get returns the compiled document for rel, compiling it on first use.
// Compile errors are not cached.
func (c *Cache) Get(ctx context.Context, rel string) (*parser.DocumentNode, error) {
	c.mu.RLock()
	doc, ok := c.docs[rel]
	epoch := c.epoch
	c.mu.RUnlock()
	if ok {
		return doc, nil
	}

	src, err := docroot.ReadAll(ctx, c.root, rel)
	if err != nil {
		return nil, err
	}
	doc, err = Compile(rel, string(src))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return doc, nil
	}
	if len(c.docs) >= c.maxSize {
		// drop an arbitrary entry
		for k := range c.docs {
			delete(c.docs, k)
			break
		}
	}
	c.docs[rel] = doc
	return doc, nil
}

// Invalidate drops the compiled document for rel.
func (c *Cache) Invalidate(rel string) {
	c.mu.Lock()
	delete(c.docs, rel)
	c.epoch++
	c.mu.Unlock()
}

// Purge drops every compiled document.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.docs = make(map[string]*parser.DocumentNode)
	c.epoch++
	c.mu.Unlock()
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
