package satellite

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is a time-bounded key/value store. Get never returns an entry older
// than the TTL; Set is last-writer-wins.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, v T)
}

type entry[T any] struct {
	val      T
	inserted time.Time
}

// MemoryCache is the in-process cache shared by all callers of a Service.
type MemoryCache[T any] struct {
	mu  sync.RWMutex
	m   map[string]entry[T]
	ttl time.Duration
	now func() time.Time
}

func NewMemoryCache[T any](ttl time.Duration) *MemoryCache[T] {
	return &MemoryCache[T]{m: make(map[string]entry[T]), ttl: ttl, now: time.Now}
}

func (c *MemoryCache[T]) Get(_ context.Context, key string) (T, bool) {
	var zero T
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.inserted) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.inserted.Equal(e.inserted) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.val, true
}

func (c *MemoryCache[T]) Set(_ context.Context, key string, v T) {
	c.mu.Lock()
	c.m[key] = entry[T]{val: v, inserted: c.now()}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// RedisCache shares entries between processes. Values are JSON encoded and
// expire server-side after the TTL. Redis errors degrade to cache misses.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache[T any](client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache_get_failed", "key", key, "error", err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("cache_decode_failed", "key", key, "error", err)
		return zero, false
	}
	return v, true
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache_encode_failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache_set_failed", "key", key, "error", err)
	}
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
