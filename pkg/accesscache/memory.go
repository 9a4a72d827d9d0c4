package accesscache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured
const DefaultMaxEntries = 10000

// MemoryCache is a bounded in-process rbac.Cache backed by an expiring LRU.
// The LRU's own TTL is a backstop for memory; freshness is still decided by
// the resolver from CachedAt.
type MemoryCache struct {
	cache *lru.LRU[rbac.CacheKey, rbac.CacheEntry]

	// byUser indexes live keys per user. It is never held while calling
	// into the LRU, whose eviction callback takes it.
	mu     sync.Mutex
	byUser map[string]map[rbac.CacheKey]struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries pairs
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = rbac.DefaultCacheTTL
	}
	c := &MemoryCache{byUser: make(map[string]map[rbac.CacheKey]struct{})}
	c.cache = lru.NewLRU[rbac.CacheKey, rbac.CacheEntry](maxEntries, c.onEvict, ttl)
	return c
}

func (c *MemoryCache) onEvict(key rbac.CacheKey, _ rbac.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unindex(key)
}

func (c *MemoryCache) unindex(key rbac.CacheKey) {
	keys := c.byUser[key.UserID]
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.byUser, key.UserID)
	}
}

// Get retrieves a cached resolution
func (c *MemoryCache) Get(_ context.Context, key rbac.CacheKey) (*rbac.CacheEntry, bool, error) {
	entry, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return &entry, true, nil
}

// Set stores a resolution
func (c *MemoryCache) Set(_ context.Context, key rbac.CacheKey, entry rbac.CacheEntry) error {
	c.cache.Add(key, entry)

	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.byUser[key.UserID]
	if !ok {
		keys = make(map[rbac.CacheKey]struct{})
		c.byUser[key.UserID] = keys
	}
	keys[key] = struct{}{}
	return nil
}

// Delete removes one pair
func (c *MemoryCache) Delete(_ context.Context, key rbac.CacheKey) error {
	c.cache.Remove(key)
	return nil
}

// DeleteUser removes every pair of userID
func (c *MemoryCache) DeleteUser(_ context.Context, userID string) error {
	c.mu.Lock()
	keys := c.byUser[userID]
	delete(c.byUser, userID)
	c.mu.Unlock()

	for key := range keys {
		c.cache.Remove(key)
	}
	return nil
}

// Purge removes everything
func (c *MemoryCache) Purge(_ context.Context) error {
	c.cache.Purge()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser = make(map[string]map[rbac.CacheKey]struct{})
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() Stats {
	return newStats(c.hits.Load(), c.misses.Load(), int64(c.cache.Len()))
}

// Stats describes cache effectiveness
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	ItemCount int64   `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}

func newStats(hits, misses, items int64) Stats {
	s := Stats{Hits: hits, Misses: misses, ItemCount: items}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
