package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

const (
	disconnectErrorThreshold = 5
	asyncWriteTimeout        = 2 * time.Second
)

// RedisCache is the optional shared layer between the process-local memory
// cache and the sqlite store. It degrades to unavailable instead of failing
// calls when the server cannot be reached.
type RedisCache struct {
	client *redis.Client
	config config.RedisConfig
	logger *slog.Logger

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64

	writeQueue    chan writeOp
	pendingWrites atomic.Int32
	droppedWrites atomic.Int64
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

type writeOp struct {
	key   string
	value []byte
}

// NewRedisCache connects to redis. A failed initial ping is logged and the
// layer starts unavailable; the health check restores it later.
func NewRedisCache(cfg config.RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		PoolTimeout:  cfg.PoolTimeout.Std(),
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for self-signed dev servers
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	queueSize := cfg.MaxPendingWrites
	if queueSize <= 0 {
		queueSize = 1
	}

	rc := &RedisCache{
		client:            redis.NewClient(opts),
		config:            cfg,
		logger:            logger.With("component", "redis-cache"),
		writeQueue:        make(chan writeOp, queueSize),
		stopCh:            make(chan struct{}),
		healthCheckStopCh: make(chan struct{}),
	}

	dialTimeout := cfg.DialTimeout.Std()
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.logger.Warn("Redis initial connection failed", "error", err)
		rc.setError(err)
	} else {
		rc.connected.Store(true)
		rc.logger.Info("Redis connected", "address", cfg.Address)
	}

	rc.wg.Add(1)
	go rc.asyncWriteWorker()

	if cfg.HealthCheckInterval > 0 {
		rc.healthCheckWg.Add(1)
		go rc.healthCheckWorker()
	}

	return rc, nil
}

// Name returns the layer name.
func (c *RedisCache) Name() string {
	return "redis"
}

// IsAvailable reports whether redis is currently considered connected.
func (c *RedisCache) IsAvailable() bool {
	return c.connected.Load()
}

func (c *RedisCache) prefixKey(key string) string {
	return c.config.KeyPrefix + key
}

// Get fetches a serialized entry.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.connected.Load() {
		return nil, types.ErrRedisUnavailable
	}

	data, err := c.client.Get(ctx, c.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		c.handleError(err)
		return nil, types.NewCacheError("Get", key, "redis", err)
	}

	c.hits.Add(1)
	c.clearError()
	return data, nil
}

// Set stores a serialized entry with the configured entry TTL. In
// fire-and-forget mode the write is queued and may be dropped.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if !c.connected.Load() {
		return types.ErrRedisUnavailable
	}

	prefixedKey := c.prefixKey(key)

	if c.config.FireAndForget {
		return c.setAsync(prefixedKey, value)
	}

	if err := c.client.Set(ctx, prefixedKey, value, c.entryTTL()).Err(); err != nil {
		c.handleError(err)
		return types.NewCacheError("Set", key, "redis", err)
	}

	c.sets.Add(1)
	c.clearError()
	return nil
}

// entryTTL bounds how long rows live in redis. Zero keeps them until evicted;
// freshness is decided by the manager from the entry's creation time.
func (c *RedisCache) entryTTL() time.Duration {
	if c.config.EntryTTL <= 0 {
		return 0
	}
	return c.config.EntryTTL.Std()
}

func (c *RedisCache) setAsync(key string, value []byte) error {
	select {
	case c.writeQueue <- writeOp{key: key, value: value}:
		c.pendingWrites.Add(1)
		return nil
	default:
		c.droppedWrites.Add(1)
		c.logger.Warn("Write queue full, dropping SET",
			"key", key,
			"dropped_total", c.droppedWrites.Load(),
		)
		return types.ErrWriteQueueFull
	}
}

func (c *RedisCache) asyncWriteWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			for {
				select {
				case op := <-c.writeQueue:
					c.executeWrite(op)
				default:
					return
				}
			}
		case op := <-c.writeQueue:
			c.executeWrite(op)
		}
	}
}

func (c *RedisCache) executeWrite(op writeOp) {
	defer c.pendingWrites.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
	defer cancel()

	if err := c.client.Set(ctx, op.key, op.value, c.entryTTL()).Err(); err != nil {
		c.handleError(err)
		c.logger.Debug("Async SET failed", "key", op.key, "error", err)
		return
	}
	c.sets.Add(1)
	c.clearError()
}

func (c *RedisCache) healthCheckWorker() {
	defer c.healthCheckWg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-c.healthCheckStopCh:
			return
		case <-ticker.C:
			c.performHealthCheck()
		}
	}
}

func (c *RedisCache) performHealthCheck() {
	wasConnected := c.connected.Load()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout.Std())
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			c.logger.Warn("Redis health check failed", "error", err)
			c.setError(err)
		}
		return
	}

	if !wasConnected {
		c.connected.Store(true)
		c.errorCount.Store(0)
		c.logger.Info("Redis connection restored via health check")
	}
}

// Delete removes an entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if !c.connected.Load() {
		return types.ErrRedisUnavailable
	}

	if err := c.client.Del(ctx, c.prefixKey(key)).Err(); err != nil {
		c.handleError(err)
		return types.NewCacheError("Delete", key, "redis", err)
	}

	c.deletes.Add(1)
	c.clearError()
	return nil
}

// Clear deletes every key under the configured prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	if !c.connected.Load() {
		return types.ErrRedisUnavailable
	}

	pattern := c.prefixKey("*")
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err)
			return types.NewCacheError("Clear", pattern, "redis", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err)
				return types.NewCacheError("Clear", pattern, "redis", err)
			}
			deleted += int64(len(keys))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Cleared redis entries", "pattern", pattern, "deleted", deleted)
	c.clearError()
	return nil
}

// Close stops the background workers, flushing queued writes, and closes
// the client.
func (c *RedisCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.healthCheckStopCh)
		c.healthCheckWg.Wait()

		close(c.stopCh)
		c.wg.Wait()

		c.connected.Store(false)
		err = c.client.Close()
	})
	return err
}

// PendingWrites returns the number of queued fire-and-forget writes.
func (c *RedisCache) PendingWrites() int {
	return int(c.pendingWrites.Load())
}

// DroppedWrites returns the number of writes dropped on a full queue.
func (c *RedisCache) DroppedWrites() int64 {
	return c.droppedWrites.Load()
}

func (c *RedisCache) handleError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastError = err
	c.lastErrorTime = time.Now()
	count := c.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if c.connected.CompareAndSwap(true, false) {
			c.logger.Warn("Redis marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (c *RedisCache) clearError() {
	if c.errorCount.Swap(0) > 0 {
		if c.connected.CompareAndSwap(false, true) {
			c.logger.Info("Redis connection restored")
		}
	}
}

func (c *RedisCache) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err
	c.lastErrorTime = time.Now()
	c.connected.Store(false)
}

// LastError returns the most recent redis error and when it happened.
func (c *RedisCache) LastError() (error, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError, c.lastErrorTime
}

var _ types.RedisCacheLayer = (*RedisCache)(nil)
