package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Cache abstracts the key/value store holding finalized detections.
// SetIfAbsent writes only when key holds no live value and reports whether
// it wrote.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// SetIfAbsent writes a value to Redis with SETNX semantics.
func (c *RedisCache) SetIfAbsent(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

// LRUCache is the in-process fallback used when no Redis address is
// configured. Entries expire after the TTL given at construction; the
// per-call expiration is ignored.
type LRUCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, string]
}

// NewLRUCache builds a bounded cache whose entries live for ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{entries: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Set stores value under key.
func (c *LRUCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, value)
	return nil
}

// SetIfAbsent stores value unless key already holds a live entry.
func (c *LRUCache) SetIfAbsent(_ context.Context, key string, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries.Peek(key); ok {
		return false, nil
	}
	c.entries.Add(key, value)
	return true, nil
}

// Get returns the value stored under key.
func (c *LRUCache) Get(_ context.Context, key string) (string, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return "", ErrCacheMiss
	}
	return value, nil
}
