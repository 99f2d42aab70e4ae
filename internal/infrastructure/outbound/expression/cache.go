package expression

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultCacheSize bounds the number of compiled expressions kept per engine.
const DefaultCacheSize = 1024

// programCache memoizes compiled expressions keyed by source text.
type programCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newProgramCache(size int) *programCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &programCache{lru: lru.New(size)}
}

func (c *programCache) get(expression string, compile func(string) (any, error)) (any, error) {
	c.mu.Lock()
	if p, ok := c.lru.Get(expression); ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := compile(expression)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(expression, p)
	c.mu.Unlock()
	return p, nil
}

func (c *programCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
