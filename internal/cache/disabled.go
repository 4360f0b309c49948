package cache

import (
	"context"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

// DisabledMemoryCache is a no-op memory cache implementation.
type DisabledMemoryCache struct{}

// NewDisabledMemoryCache creates a new disabled memory cache.
func NewDisabledMemoryCache() *DisabledMemoryCache {
	return &DisabledMemoryCache{}
}

func (c *DisabledMemoryCache) Name() string { return "memory-disabled" }
func (c *DisabledMemoryCache) IsAvailable() bool { return false }
func (c *DisabledMemoryCache) Close() error { return nil }
func (c *DisabledMemoryCache) EntryCount() int { return 0 }
func (c *DisabledMemoryCache) HitRatio() float64 { return 0 }
func (c *DisabledMemoryCache) Stats() types.MemoryCacheStats { return types.MemoryCacheStats{} }
func (c *DisabledMemoryCache) Clear(ctx context.Context) error { return nil }

// Get always misses.
func (c *DisabledMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, types.ErrCacheMiss
}

func (c *DisabledMemoryCache) Set(ctx context.Context, key string, value []byte) error {
	return nil
}

func (c *DisabledMemoryCache) Delete(ctx context.Context, key string) error {
	return nil
}

// DisabledRedisCache is a no-op Redis cache implementation.
type DisabledRedisCache struct{}

// NewDisabledRedisCache creates a new disabled Redis cache.
func NewDisabledRedisCache() *DisabledRedisCache {
	return &DisabledRedisCache{}
}

func (c *DisabledRedisCache) Name() string { return "redis-disabled" }
func (c *DisabledRedisCache) IsAvailable() bool { return false }
func (c *DisabledRedisCache) Close() error { return nil }
func (c *DisabledRedisCache) PendingWrites() int { return 0 }
func (c *DisabledRedisCache) DroppedWrites() int64 { return 0 }
func (c *DisabledRedisCache) Clear(ctx context.Context) error { return nil }

// Get returns ErrRedisUnavailable as this cache is disabled.
func (c *DisabledRedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, types.ErrRedisUnavailable
}

func (c *DisabledRedisCache) Set(ctx context.Context, key string, value []byte) error {
	return nil
}

func (c *DisabledRedisCache) Delete(ctx context.Context, key string) error {
	return nil
}

// DisabledResponseCache never stores anything. Routers use it when caching
// is turned off.
type DisabledResponseCache struct{}

func (DisabledResponseCache) Get(ctx context.Context, operation, key string, ttl time.Duration) (string, error) {
	return "", types.ErrCacheMiss
}

func (DisabledResponseCache) GetStale(ctx context.Context, operation, key string) (string, error) {
	return "", types.ErrCacheMiss
}

func (DisabledResponseCache) Set(ctx context.Context, operation, key, payload, backend string) error {
	return nil
}

func (DisabledResponseCache) Clear(ctx context.Context) error { return nil }

var (
	_ types.MemoryCacheLayer = (*DisabledMemoryCache)(nil)
	_ types.RedisCacheLayer  = (*DisabledRedisCache)(nil)
	_ types.ResponseCache    = DisabledResponseCache{}
)
