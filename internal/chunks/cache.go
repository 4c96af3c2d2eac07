// Package chunks holds the site's page chunks: named loaders that build a
// templ component, and the cache their results are kept in.
//
// The cache is what prefetching warms. Loads of the same chunk are
// collapsed into one in-flight call; successful results stay cached until
// Invalidate starts a new generation. Failed loads are not cached.
package chunks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/a-h/templ"
	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/lazy"
	"github.com/conneroisu/brokerage/internal/logging"
	"github.com/conneroisu/brokerage/internal/prefetch"
)

// Loader builds a chunk's component.
type Loader func(ctx context.Context) (templ.Component, error)

// Stats is a snapshot of cache activity.
type Stats struct {
	Registered int    `json:"registered"`
	Cached     int    `json:"cached"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Loads      int64  `json:"loads"`
	Failures   int64  `json:"failures"`
	Generation uint64 `json:"generation"`
}

// Cache maps chunk names to loaders and caches their output.
type Cache struct {
	logger logging.Logger

	mu         sync.RWMutex
	loaders    map[string]Loader
	entries    map[string]templ.Component
	wrappers   map[string]*lazy.Component
	generation uint64

	group singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// New returns an empty cache.
func New(logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Cache{
		logger:   logger.WithComponent("chunks"),
		loaders:  make(map[string]Loader),
		entries:  make(map[string]templ.Component),
		wrappers: make(map[string]*lazy.Component),
	}
}

// Register adds or replaces the loader for name. Replacing a loader drops
// the cached output and wrapper for that chunk.
func (c *Cache) Register(name string, loader Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaders[name] = loader
	delete(c.entries, name)
	delete(c.wrappers, name)
}

// Has reports whether a loader is registered for name.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.loaders[name]
	return ok
}

// Names returns the registered chunk names in sorted order.
func (c *Cache) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Warmed reports whether name is currently cached.
func (c *Cache) Warmed(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[name]
	return ok
}

// Get returns the cached component for name, loading it if needed.
func (c *Cache) Get(ctx context.Context, name string) (templ.Component, error) {
	c.mu.RLock()
	if component, ok := c.entries[name]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return component, nil
	}
	loader, ok := c.loaders[name]
	generation := c.generation
	c.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeChunkNotFound, "unknown chunk: "+name)
	}
	c.misses.Add(1)

	key := fmt.Sprintf("%d/%s", generation, name)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.loads.Add(1)
		component, err := loader(ctx)
		if err != nil {
			c.failures.Add(1)
			return nil, errors.NewLoadError(errors.ErrCodeChunkLoad, "loading chunk "+name, err)
		}

		c.mu.Lock()
		if c.generation == generation {
			c.entries[name] = component
		}
		c.mu.Unlock()

		c.logger.Debug(ctx, "chunk loaded", "chunk", name, "generation", generation)
		return component, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(templ.Component), nil
}

// Prefetcher returns a prefetch loader that warms name and drops the result.
func (c *Cache) Prefetcher(name string) prefetch.LoaderFunc {
	return func(ctx context.Context) error {
		_, err := c.Get(ctx, name)
		return err
	}
}

// Prefetchers returns prefetch loaders for every known, not yet cached name.
func (c *Cache) Prefetchers(names []string) []prefetch.LoaderFunc {
	loaders := make([]prefetch.LoaderFunc, 0, len(names))
	for _, name := range names {
		if !c.Has(name) || c.Warmed(name) {
			continue
		}
		loaders = append(loaders, c.Prefetcher(name))
	}

	return loaders
}

// Lazy returns the lazy wrapper for name, creating it on first use. The
// wrapper loads through the cache, so a prefetched chunk resolves without
// calling its loader again. A wrapper whose load failed is replaced by a
// fresh one on the next call, giving the chunk another chance.
func (c *Cache) Lazy(name string, fallback templ.Component) *lazy.Component {
	c.mu.RLock()
	wrapper, ok := c.wrappers[name]
	c.mu.RUnlock()
	if ok && wrapper.State() != lazy.Failed {
		return wrapper
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if wrapper, ok := c.wrappers[name]; ok && wrapper.State() != lazy.Failed {
		return wrapper
	}

	wrapper = lazy.Wrap(func(ctx context.Context) (templ.Component, error) {
		return c.Get(ctx, name)
	}, fallback)
	c.wrappers[name] = wrapper

	return wrapper
}

// Invalidate drops every cached component and wrapper. Loads already in
// flight finish but their results are discarded.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string]templ.Component)
	c.wrappers = make(map[string]*lazy.Component)
	generation := c.generation
	c.mu.Unlock()

	c.logger.Info(context.Background(), "chunk cache invalidated", "generation", generation)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Registered: len(c.loaders),
		Cached:     len(c.entries),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Loads:      c.loads.Load(),
		Failures:   c.failures.Load(),
		Generation: c.generation,
	}
}
