package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// DefaultShutdownTimeout is the default timeout for shutting down the cache manager.
const DefaultShutdownTimeout = 30 * time.Second

// DefaultBackgroundOpTimeout is the default timeout for back-fill writes.
const DefaultBackgroundOpTimeout = 5 * time.Second

// Manager is the layered response cache. Reads go memory, redis, then the
// sqlite store; the store is written first and is the source of truth.
type Manager struct {
	store          *Store
	memory         types.MemoryCacheLayer
	redis          types.RedisCacheLayer
	serializer     types.Serializer
	metrics        types.MetricsRecorder
	logger         *slog.Logger
	names          *types.NameValidator
	clock          types.Clock
	redisEnabled   bool
	shutdownCancel context.CancelFunc
	shutdownCtx    context.Context
	sfGroup        singleflight.Group
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool
}

// NewManager opens the store and builds the configured upper layers. A redis
// layer that cannot be created degrades to disabled with a warning.
func NewManager(cfg config.CacheConfig, opts *types.Options) (*Manager, error) {
	if opts == nil {
		opts = &types.Options{}
	}
	logger := types.SlogFrom(opts.Logger).With("component", "cache-manager")

	path := cfg.Path
	if opts.CachePath != "" {
		path = opts.CachePath
	}
	store, err := OpenStore(path, logger)
	if err != nil {
		return nil, err
	}

	m := newManager(store, logger, opts)

	if cfg.Memory.Enabled {
		memCache, err := NewMemoryCache(cfg.Memory, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		m.memory = memCache
	}

	if cfg.Redis.Enabled && !opts.DisableRedis {
		redisCache, err := NewRedisCache(cfg.Redis, logger)
		if err != nil {
			logger.Warn("Failed to create Redis cache, continuing without it", "error", err)
		} else {
			m.redis = redisCache
			m.redisEnabled = true
		}
	}

	return m, nil
}

// NewManagerWithLayers assembles a manager from existing layers. Nil layers
// are replaced by their disabled variants.
func NewManagerWithLayers(store *Store, memory types.MemoryCacheLayer, redis types.RedisCacheLayer, opts *types.Options) *Manager {
	if opts == nil {
		opts = &types.Options{}
	}
	m := newManager(store, types.SlogFrom(opts.Logger).With("component", "cache-manager"), opts)
	if memory != nil {
		m.memory = memory
	}
	if redis != nil {
		m.redis = redis
		m.redisEnabled = true
	}
	return m
}

func newManager(store *Store, logger *slog.Logger, opts *types.Options) *Manager {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	m := &Manager{
		store:          store,
		memory:         NewDisabledMemoryCache(),
		redis:          NewDisabledRedisCache(),
		serializer:     NewJSONSerializer(),
		metrics:        opts.Metrics,
		logger:         logger,
		names:          types.DefaultNameValidator,
		clock:          time.Now,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
	if opts.Serializer != nil {
		m.serializer = opts.Serializer
	}
	if opts.Clock != nil {
		m.clock = opts.Clock
	}
	return m
}

// Get returns the payload stored under (operation, key) when it is fresh
// under ttl. Missing and expired entries are ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, operation, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	now := m.clock()
	entry, layer, err := m.lookup(ctx, operation, key, func(e *types.CacheEntry) bool {
		return e.Fresh(ttl, now)
	})
	if err != nil {
		if types.IsCacheMiss(err) && m.metrics != nil {
			m.metrics.RecordCacheMiss(operation, time.Since(start))
		}
		return "", err
	}

	m.logger.Debug("Cache hit", "operation", operation, "layer", layer, "age", entry.Age(now))
	if m.metrics != nil {
		m.metrics.RecordCacheHit(layer, operation, time.Since(start))
	}
	return entry.Payload, nil
}

// GetStale returns the stored payload regardless of its age.
func (m *Manager) GetStale(ctx context.Context, operation, key string) (string, error) {
	entry, _, err := m.lookup(ctx, operation, key, func(*types.CacheEntry) bool { return true })
	if err != nil {
		return "", err
	}
	return entry.Payload, nil
}

// Entry returns the stored row of (operation, key) without a freshness check.
func (m *Manager) Entry(ctx context.Context, operation, key string) (*types.CacheEntry, error) {
	entry, _, err := m.lookup(ctx, operation, key, func(*types.CacheEntry) bool { return true })
	return entry, err
}

func (m *Manager) lookup(ctx context.Context, operation, key string, accept func(*types.CacheEntry) bool) (*types.CacheEntry, string, error) {
	if m.closed.Load() {
		return nil, "", types.ErrClosed
	}
	if err := m.names.Validate(operation); err != nil {
		return nil, "", err
	}

	composite := types.CompositeKey(operation, key)

	if entry := m.fromLayer(ctx, m.memory, composite); entry != nil && accept(entry) {
		return entry, m.memory.Name(), nil
	}

	if m.redis.IsAvailable() {
		if entry := m.fromLayer(ctx, m.redis, composite); entry != nil && accept(entry) {
			m.backfill(composite, entry, false)
			return entry, m.redis.Name(), nil
		}
	}

	entry, err := m.loadFromStore(ctx, operation, key)
	if err != nil {
		return nil, "", err
	}
	if !accept(entry) {
		return nil, "", types.ErrCacheMiss
	}
	m.backfill(composite, entry, true)
	return entry, m.store.Name(), nil
}

// fromLayer reads and decodes an entry; any failure is treated as a miss.
func (m *Manager) fromLayer(ctx context.Context, layer types.EntryLayer, composite string) *types.CacheEntry {
	data, err := layer.Get(ctx, composite)
	if err != nil {
		if !types.IsCacheMiss(err) && !errors.Is(err, types.ErrRedisUnavailable) {
			m.logger.Debug("Cache layer read failed", "layer", layer.Name(), "key", composite, "error", err)
		}
		return nil
	}
	entry, err := decodeEntry(m.serializer, data)
	if err != nil {
		m.logger.Warn("Discarding undecodable cache entry", "layer", layer.Name(), "key", composite, "error", err)
		return nil
	}
	return entry
}

func (m *Manager) loadFromStore(ctx context.Context, operation, key string) (*types.CacheEntry, error) {
	v, err, _ := m.sfGroup.Do(types.CompositeKey(operation, key), func() (any, error) {
		return m.store.Load(ctx, operation, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.CacheEntry), nil
}

// backfill copies a lower-layer hit into the layers above it.
func (m *Manager) backfill(composite string, entry *types.CacheEntry, includeRedis bool) {
	data, err := encodeEntry(m.serializer, entry)
	if err != nil {
		m.logger.Debug("Skipping back-fill", "key", composite, "error", err)
		return
	}
	m.runBackground(func(ctx context.Context) {
		if err := m.memory.Set(ctx, composite, data); err != nil {
			m.logger.Debug("Failed to back-fill memory", "key", composite, "error", err)
		}
		if includeRedis && m.redis.IsAvailable() {
			if err := m.redis.Set(ctx, composite, data); err != nil {
				m.logger.Debug("Failed to back-fill Redis", "key", composite, "error", err)
			}
		}
	})
}

// Set upserts payload under (operation, key) with a fresh creation time.
// Only a store failure is returned; upper layers are best effort.
func (m *Manager) Set(ctx context.Context, operation, key, payload, backend string) error {
	if m.closed.Load() {
		return types.ErrClosed
	}
	if err := m.names.Validate(operation); err != nil {
		return err
	}

	entry := &types.CacheEntry{
		Operation: operation,
		Key:       key,
		Backend:   backend,
		Payload:   payload,
		CreatedAt: m.clock(),
	}
	if err := m.store.Save(ctx, entry); err != nil {
		if m.metrics != nil {
			m.metrics.RecordError("cache", operation, err)
		}
		return err
	}

	data, err := encodeEntry(m.serializer, entry)
	if err != nil {
		m.logger.Warn("Failed to encode cache entry for upper layers", "operation", operation, "error", err)
		return nil
	}

	composite := types.CompositeKey(operation, key)
	if err := m.memory.Set(ctx, composite, data); err != nil {
		m.logger.Warn("Memory cache write failed", "operation", operation, "error", err)
	}
	if m.redis.IsAvailable() {
		if err := m.redis.Set(ctx, composite, data); err != nil {
			m.logger.Warn("Redis cache write failed", "operation", operation, "error", err)
		}
	}
	return nil
}

// Clear empties every layer.
func (m *Manager) Clear(ctx context.Context) error {
	if m.closed.Load() {
		return types.ErrClosed
	}

	var errs []error
	if err := m.store.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.memory.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if m.redis.IsAvailable() {
		if err := m.redis.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info("Cache cleared")
	return errors.Join(errs...)
}

// Health reports per-layer availability and entry counts.
func (m *Manager) Health(ctx context.Context) types.CacheHealth {
	h := types.CacheHealth{
		Enabled:          true,
		StoreAvailable:   m.store.IsAvailable(),
		MemoryEntries:    m.memory.EntryCount(),
		MemoryHitRatio:   m.memory.HitRatio(),
		MemoryOperations: m.memory.Stats().Operations,
		RedisEnabled:     m.redisEnabled,
		RedisConnected:   m.redis.IsAvailable(),
		RedisPending:     m.redis.PendingWrites(),
		RedisDropped:     m.redis.DroppedWrites(),
	}
	if h.StoreAvailable {
		if n, err := m.store.Count(ctx); err == nil {
			h.StoredEntries = n
		} else {
			m.logger.Debug("Store count failed", "error", err)
		}
	}

	switch {
	case !h.StoreAvailable:
		h.Status = types.HealthStatusUnhealthy
	case h.RedisEnabled && !h.RedisConnected:
		h.Status = types.HealthStatusDegraded
	default:
		h.Status = types.HealthStatusHealthy
	}
	return h
}

// Path returns the sqlite path, empty for in-memory stores.
func (m *Manager) Path() string {
	return m.store.Path()
}

// Close releases all resources using the default shutdown timeout.
func (m *Manager) Close() error {
	return m.CloseWithTimeout(DefaultShutdownTimeout)
}

// CloseWithTimeout waits for pending back-fills, then closes every layer.
// On timeout it returns ErrShutdownTimeout but still closes the layers.
func (m *Manager) CloseWithTimeout(timeout time.Duration) error {
	m.bgMu.Lock()
	if m.closed.Swap(true) {
		m.bgMu.Unlock()
		return nil
	}
	m.shutdownCancel()
	m.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.bgWg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("Shutdown timeout exceeded, proceeding with close", "timeout", timeout)
		errs = append(errs, types.ErrShutdownTimeout)
	}

	if err := m.memory.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.redis.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runBackground executes fn in a goroutine tracked for graceful shutdown.
// Nothing is started once the manager is closed.
func (m *Manager) runBackground(fn func(ctx context.Context)) {
	m.bgMu.Lock()
	if m.closed.Load() {
		m.bgMu.Unlock()
		return
	}
	m.bgWg.Add(1)
	m.bgMu.Unlock()

	go func() {
		defer m.bgWg.Done()
		ctx, cancel := context.WithTimeout(m.shutdownCtx, DefaultBackgroundOpTimeout)
		defer cancel()
		fn(ctx)
	}()
}

var _ types.ResponseCache = (*Manager)(nil)
