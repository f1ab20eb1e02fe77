// Package cache provides the result cache drivers for the extraction engine.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Stats reports operational cache statistics.
type Stats struct {
	Entries        int64         `json:"entries"`
	Hits           int64         `json:"hits"`
	Misses         int64         `json:"misses"`
	HitRate        float64       `json:"hit_rate"`
	OldestEntryAge time.Duration `json:"oldest_entry_age"`
}

// Client defines the cache driver interface. Mutations go through the
// single Set/Delete path; Get may run concurrently.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// hitRate computes hits / (hits + misses), zero when untouched.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// MemoryClient implements an in-process cache with TTL expiry and LRU
// eviction under capacity pressure.
type MemoryClient struct {
	entries *lru.LRU[string, memoryEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
}

// NewMemoryClient creates a memory cache with the given capacity and TTL.
func NewMemoryClient(maxEntries int, ttl time.Duration) *MemoryClient {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &MemoryClient{
		entries: lru.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	c.hits.Add(1)
	return entry.value, nil
}

// Set stores a value. The memory driver uses the cache-wide TTL; the ttl
// argument is accepted for interface parity.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.entries.Add(key, memoryEntry{value: value, createdAt: time.Now()})
	return nil
}

// Delete removes a value from the cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Stats reports entry count, hit rate and the age of the oldest live entry.
func (c *MemoryClient) Stats(ctx context.Context) (Stats, error) {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var oldest time.Duration
	now := time.Now()
	for _, entry := range c.entries.Values() {
		if age := now.Sub(entry.createdAt); age > oldest {
			oldest = age
		}
	}

	return Stats{
		Entries:        int64(c.entries.Len()),
		Hits:           hits,
		Misses:         misses,
		HitRate:        hitRate(hits, misses),
		OldestEntryAge: oldest,
	}, nil
}

// Close is a no-op for the memory cache.
func (c *MemoryClient) Close() error {
	return nil
}

// RedisClient implements the cache on Redis.
type RedisClient struct {
	client *redis.Client
	prefix string
	hits   atomic.Int64
	misses atomic.Int64
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// NewRedisClient creates a new Redis cache client.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "xe:"
	}

	return &RedisClient{
		client: client,
		prefix: prefix,
	}, nil
}

// Get retrieves a value from the cache.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	c.hits.Add(1)
	return val, nil
}

// Set stores a value with the given TTL.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Stats reports entry count and the hit rate observed by this process.
// Redis does not expose per-key creation times cheaply, so the oldest
// entry age is reported as zero for this driver.
func (c *RedisClient) Stats(ctx context.Context) (Stats, error) {
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("redis dbsize: %w", err)
	}

	hits := c.hits.Load()
	misses := c.misses.Load()

	return Stats{
		Entries: size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}, nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
