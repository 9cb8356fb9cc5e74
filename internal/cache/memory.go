package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process cache backed by go-cache.
// It is not visible to other processes.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true, nil
	}
	return nil, false, nil
}

// Set stores a value in the cache with the given TTL
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, memoryTTL(ttl))
	return nil
}

// SetNX stores value only if key is absent
func (c *MemoryCache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := c.cache.Add(key, value, memoryTTL(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// Exists reports whether key is present and unexpired
func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, found := c.cache.Get(key)
	return found, nil
}

// GetMany retrieves all present keys
func (c *MemoryCache) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if val, found := c.cache.Get(key); found {
			out[key] = val.([]byte)
		}
	}
	return out, nil
}

// SetMany stores all values with the same TTL
func (c *MemoryCache) SetMany(_ context.Context, values map[string][]byte, ttl time.Duration) error {
	for key, val := range values {
		c.cache.Set(key, val, memoryTTL(ttl))
	}
	return nil
}

// Delete removes values from the cache
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Delete(key)
	}
	return nil
}

// Keys lists live keys with the given prefix, sorted
func (c *MemoryCache) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds for the in-process cache
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close removes all values from the cache
func (c *MemoryCache) Close() error {
	c.cache.Flush()
	return nil
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}
