package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lborres/workdeck/core"
)

const (
	defaultTTL     = time.Minute
	defaultMaxSize = 500
)

// LRUCache is an in-memory session cache with per-entry TTL and LRU eviction.
// Entries are cloned on the way in and out.
type LRUCache struct {
	lru *expirable.LRU[string, *core.SessionValidationResult]
	ttl time.Duration

	// counters
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

var _ core.CacheWithStats = (*LRUCache)(nil)

// NewLRUCache creates a new in-memory cache
func NewLRUCache(c core.CacheConfig) *LRUCache {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}

	return &LRUCache{
		lru: expirable.NewLRU[string, *core.SessionValidationResult](c.MaxSize, nil, c.TTL),
		ttl: c.TTL,
	}
}

func (c *LRUCache) Get(sessionID string) (*core.SessionValidationResult, error) {
	result, ok := c.lru.Get(sessionID)
	if !ok {
		c.misses.Add(1)
		return nil, core.ErrCacheNotFound
	}

	c.hits.Add(1)
	return result.Clone(), nil
}

func (c *LRUCache) Set(sessionID string, result *core.SessionValidationResult) error {
	if c.lru.Add(sessionID, result.Clone()) {
		c.evictions.Add(1)
	}
	c.sets.Add(1)
	return nil
}

func (c *LRUCache) Delete(sessionID string) error {
	if c.lru.Remove(sessionID) {
		c.deletes.Add(1)
	}
	return nil
}

// DeleteUser drops every cached session owned by userID.
func (c *LRUCache) DeleteUser(userID string) error {
	for _, key := range c.lru.Keys() {
		result, ok := c.lru.Peek(key)
		if !ok || result.User == nil || result.User.ID != userID {
			continue
		}
		if c.lru.Remove(key) {
			c.deletes.Add(1)
		}
	}
	return nil
}

func (c *LRUCache) Clear() error {
	c.lru.Purge()
	return nil
}

func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func (c *LRUCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
