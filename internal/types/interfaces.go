package types

import (
	"context"
	"time"
)

type CacheInfo interface {
	Name() string
	IsAvailable() bool
}

// EntryLayer is a cache tier holding serialized CacheEntry values.
type EntryLayer interface {
	CacheInfo
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

type MemoryStatsProvider interface {
	Stats() MemoryCacheStats
	EntryCount() int
	HitRatio() float64
}

type MemoryCacheLayer interface {
	EntryLayer
	MemoryStatsProvider
}

type RedisCacheLayer interface {
	EntryLayer
	PendingWrites() int
	DroppedWrites() int64
}

// ResponseCache is the contract the routers use to read and write cached
// backend responses.
type ResponseCache interface {
	Get(ctx context.Context, operation, key string, ttl time.Duration) (string, error)
	GetStale(ctx context.Context, operation, key string) (string, error)
	Set(ctx context.Context, operation, key, payload, backend string) error
	Clear(ctx context.Context) error
}

type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

// AuditSink receives append-only structured events. Record must not block
// the caller for long and must never fail the routing call.
type AuditSink interface {
	Record(rec AuditRecord)
}

// AuditRecord is one structured audit event.
type AuditRecord map[string]any

// Event returns the record's event name.
func (r AuditRecord) Event() string {
	s, _ := r["event"].(string)
	return s
}

type MetricsRecorder interface {
	RecordCacheHit(layer, operation string, latency time.Duration)
	RecordCacheMiss(operation string, latency time.Duration)
	RecordStaleServed(operation string)
	RecordAttempt(backend, operation string, success bool, latency time.Duration)
	RecordCircuitStateChange(backend, from, to string)
	RecordFallback(role, model string)
	RecordRateLimitWait(key string, wait time.Duration)
	RecordError(component, operation string, err error)
}

type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text, alertType string, tags ...string)
	PublishHealthMetrics(metrics *PublisherHealthMetrics)
	Close() error
}

// PublisherHealthMetrics is the periodic health batch sent to publishers.
type PublisherHealthMetrics struct {
	CacheHitRatio    float64
	CacheEntries     int64
	BackendAttempts  int64
	BackendFailures  int64
	OpenCircuits     int
	Fallbacks        int64
	StaleResponses   int64
	AverageLatencyMs float64
	CacheConnected   bool
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
