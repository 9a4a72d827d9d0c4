package rbac

import (
	"context"
	"sync"
	"time"
)

// CacheKey identifies a cached resolution
type CacheKey struct {
	UserID    string
	ProjectID string
}

func (k CacheKey) String() string {
	return k.UserID + ":" + k.ProjectID
}

// CacheEntry is a cached resolution and the time it was computed
type CacheEntry struct {
	Result   EffectiveRoleResult `json:"result"`
	CachedAt time.Time           `json:"cached_at"`
}

// Cache stores resolutions. Implementations must be safe for concurrent use.
// Get reports a miss with ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (entry *CacheEntry, ok bool, err error)
	Set(ctx context.Context, key CacheKey, entry CacheEntry) error
	Delete(ctx context.Context, key CacheKey) error
	DeleteUser(ctx context.Context, userID string) error
	Purge(ctx context.Context) error
}

// MapCache is an unbounded in-process Cache guarded by a RWMutex. Entries are
// grouped per user so DeleteUser does not scan unrelated users.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]CacheEntry
}

// NewMapCache creates an empty MapCache
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]map[string]CacheEntry)}
}

func (c *MapCache) Get(_ context.Context, key CacheKey) (*CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key.UserID][key.ProjectID]
	if !ok {
		return nil, false, nil
	}
	entry.Result = *entry.Result.clone()
	return &entry, true, nil
}

func (c *MapCache) Set(_ context.Context, key CacheKey, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	projects, ok := c.entries[key.UserID]
	if !ok {
		projects = make(map[string]CacheEntry)
		c.entries[key.UserID] = projects
	}
	entry.Result = *entry.Result.clone()
	projects[key.ProjectID] = entry
	return nil
}

func (c *MapCache) Delete(_ context.Context, key CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if projects, ok := c.entries[key.UserID]; ok {
		delete(projects, key.ProjectID)
		if len(projects) == 0 {
			delete(c.entries, key.UserID)
		}
	}
	return nil
}

func (c *MapCache) DeleteUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	return nil
}

func (c *MapCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]map[string]CacheEntry)
	return nil
}

// Len returns the number of cached pairs
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, projects := range c.entries {
		n += len(projects)
	}
	return n
}

// nopCache never stores anything
type nopCache struct{}

func (nopCache) Get(context.Context, CacheKey) (*CacheEntry, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, CacheKey, CacheEntry) error          { return nil }
func (nopCache) Delete(context.Context, CacheKey) error                   { return nil }
func (nopCache) DeleteUser(context.Context, string) error                 { return nil }
func (nopCache) Purge(context.Context) error                              { return nil }
