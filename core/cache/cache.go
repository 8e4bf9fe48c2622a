// Package cache provides the LRU caches for compiled query expressions.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Compiled caches the result of an expensive, deterministic compile step
// keyed by its source text. Failed compilations are not cached. It is safe
// for concurrent use.
type Compiled[V any] struct {
	mu      sync.Mutex
	lru     *lru.Cache
	compile func(string) (V, error)
}

// NewCompiled wraps compile with an LRU cache holding up to maxSize
// entries (0 = unlimited).
func NewCompiled[V any](maxSize int, compile func(string) (V, error)) *Compiled[V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Compiled[V]{
		lru:     lru.New(maxSize),
		compile: compile,
	}
}

// Get returns the compiled form of src, compiling it on a miss.
func (c *Compiled[V]) Get(src string) (V, error) {
	c.mu.Lock()
	v, ok := c.lru.Get(src)
	c.mu.Unlock()
	if ok {
		return v.(V), nil
	}

	compiled, err := c.compile(src)
	if err != nil {
		return compiled, err
	}
	c.mu.Lock()
	c.lru.Add(src, compiled)
	c.mu.Unlock()
	return compiled, nil
}
