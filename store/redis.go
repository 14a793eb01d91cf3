// Package store provides alternative Cache backends for gerbang.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ambiyansyah-risyal/gerbang"
)

const defaultPrefix = "gerbang:cache:"

// RedisCache is a Redis-backed gerbang.Cache, for deployments where several
// mediator processes should share one response cache. TTL expiry is enforced
// by Redis; capacity is bounded by the server's eviction policy rather than
// an in-process LRU.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: defaultPrefix,
	}
}

// WithPrefix changes the key namespace and returns the cache for chaining.
func (c *RedisCache) WithPrefix(prefix string) *RedisCache {
	c.prefix = prefix
	return c
}

// Get retrieves a cached response. Redis errors are reported as misses; the
// cache is best-effort and the mediator falls through to the upstream.
func (c *RedisCache) Get(key string) (gerbang.Response, bool) {
	if key == "" {
		return gerbang.Response{}, false
	}

	data, err := c.client.Get(context.Background(), c.prefix+key).Bytes()
	if err != nil {
		return gerbang.Response{}, false
	}

	var resp gerbang.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return gerbang.Response{}, false
	}
	return resp, true
}

// Set stores a response under key with the given TTL.
func (c *RedisCache) Set(key string, value gerbang.Response, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.prefix+key, data, ttl)
}

// Invalidate removes the entry for key, if any.
func (c *RedisCache) Invalidate(key string) {
	c.client.Del(context.Background(), c.prefix+key)
}
