package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	vecs map[string][]float64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vecs: make(map[string][]float64)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vecs[key]
	return vec, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, vec []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vecs[key] = vec
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisCache shares embeddings between processes through Redis.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "headloc:emb:"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float64, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding %s: %w", key, err)
	}
	return vec, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float64) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
