package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/allegro/bigcache/v3"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// MemoryCache is the in-process hot copy of cache rows, backed by BigCache.
// Keys are composite "operation:key" strings; values are serialized entries.
// Traffic is counted per operation as well as in total.
type MemoryCache struct {
	cache  *bigcache.BigCache
	logger *slog.Logger

	deletes atomic.Int64

	mu  sync.Mutex
	ops map[string]*types.OperationCacheStats

	closed atomic.Bool
}

// NewMemoryCache creates a memory layer sized by cfg.
func NewMemoryCache(cfg config.MemoryConfig, logger *slog.Logger) (*MemoryCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mc := &MemoryCache{
		logger: logger.With("component", "memory-cache"),
		ops:    make(map[string]*types.OperationCacheStats),
	}

	bc, err := bigcache.New(context.Background(), mc.bigcacheConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	mc.cache = bc
	return mc, nil
}

func (c *MemoryCache) bigcacheConfig(cfg config.MemoryConfig) bigcache.Config {
	bc := bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.LifeWindow.Std(),
		CleanWindow:        cfg.CleanupInterval.Std(),
		MaxEntriesInWindow: 1000 * 10 * 60,
		MaxEntrySize:       cfg.MaxEntrySize,
		Logger:             &bigcacheLogger{logger: c.logger},
		OnRemoveWithReason: func(key string, _ []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				c.count(key, func(s *types.OperationCacheStats) { s.Evictions++ })
			}
		},
	}
	if cfg.HardMaxCacheSize {
		bc.HardMaxCacheSize = cfg.MaxSizeMB
	}
	return bc
}

// operationOf returns the operation half of a composite key.
func operationOf(key string) string {
	op, _, found := strings.Cut(key, ":")
	if !found {
		return ""
	}
	return op
}

func (c *MemoryCache) count(key string, bump func(*types.OperationCacheStats)) {
	op := operationOf(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.ops[op]
	if !ok {
		s = &types.OperationCacheStats{}
		c.ops[op] = s
	}
	bump(s)
}

func (c *MemoryCache) Name() string {
	return "memory"
}

func (c *MemoryCache) IsAvailable() bool {
	return !c.closed.Load()
}

// Get returns the serialized entry stored under key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, types.ErrClosed
	}

	data, err := c.cache.Get(key)
	switch {
	case errors.Is(err, bigcache.ErrEntryNotFound):
		c.count(key, func(s *types.OperationCacheStats) { s.Misses++ })
		return nil, types.ErrCacheMiss
	case err != nil:
		return nil, types.NewCacheError("Get", key, "memory", err)
	}
	c.count(key, func(s *types.OperationCacheStats) { s.Hits++ })
	return data, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	if err := c.cache.Set(key, value); err != nil {
		return types.NewCacheError("Set", key, "memory", err)
	}
	c.count(key, func(s *types.OperationCacheStats) { s.Sets++ })
	return nil
}

// Delete removes an entry. Missing keys are not an error.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return types.NewCacheError("Delete", key, "memory", err)
	}
	c.deletes.Add(1)
	return nil
}

// Clear drops every entry. Counters survive.
func (c *MemoryCache) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	return c.cache.Reset()
}

func (c *MemoryCache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.cache.Close()
}

// Stats returns the totals and a copy of the per-operation counters.
func (c *MemoryCache) Stats() types.MemoryCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := types.MemoryCacheStats{
		Deletes:    c.deletes.Load(),
		Operations: make(map[string]types.OperationCacheStats, len(c.ops)),
	}
	for op, s := range c.ops {
		out.Hits += s.Hits
		out.Misses += s.Misses
		out.Sets += s.Sets
		out.Evictions += s.Evictions
		out.Operations[op] = *s
	}
	return out
}

// OperationStats returns the counters of one operation.
func (c *MemoryCache) OperationStats(operation string) types.OperationCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.ops[operation]; ok {
		return *s
	}
	return types.OperationCacheStats{}
}

func (c *MemoryCache) EntryCount() int {
	return c.cache.Len()
}

func (c *MemoryCache) HitRatio() float64 {
	s := c.Stats()
	return types.OperationCacheStats{Hits: s.Hits, Misses: s.Misses}.HitRatio()
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("bigcache: "+format, args...))
}

var _ types.MemoryCacheLayer = (*MemoryCache)(nil)
