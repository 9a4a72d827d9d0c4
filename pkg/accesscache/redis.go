package accesscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/rbac"
)

// DefaultKeyPrefix namespaces access cache keys in a shared Redis
const DefaultKeyPrefix = "access:role"

// RedisConfig configures a RedisCache
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TTL        time.Duration
	KeyPrefix  string
}

// RedisCache is an rbac.Cache shared by every resolver instance. Entries are
// JSON encoded and expire through Redis TTLs.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.TTL, config.KeyPrefix), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = rbac.DefaultCacheTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) key(key rbac.CacheKey) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, key.UserID, key.ProjectID)
}

// Get retrieves a cached resolution
func (c *RedisCache) Get(ctx context.Context, key rbac.CacheKey) (*rbac.CacheEntry, bool, error) {
	redisKey := c.key(key)

	data, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry rbac.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt data is dropped and reported as a miss
		c.client.Del(ctx, redisKey)
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return &entry, true, nil
}

// Set stores a resolution with the configured TTL
func (c *RedisCache) Set(ctx context.Context, key rbac.CacheKey, entry rbac.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// Delete removes one pair
func (c *RedisCache) Delete(ctx context.Context, key rbac.CacheKey) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// DeleteUser removes every pair of userID
func (c *RedisCache) DeleteUser(ctx context.Context, userID string) error {
	return c.deletePattern(ctx, fmt.Sprintf("%s:%s:*", c.prefix, escapeGlob(userID)))
}

// Purge removes every access cache key under the prefix
func (c *RedisCache) Purge(ctx context.Context) error {
	return c.deletePattern(ctx, c.prefix+":*")
}

func (c *RedisCache) deletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// Stats returns this process's hit and miss counts and the shared key count
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	var items int64
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		items++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to count cache keys: %w", err)
	}
	return newStats(c.hits.Load(), c.misses.Load(), items), nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
