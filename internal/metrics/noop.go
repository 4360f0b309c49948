package metrics

import (
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

// NoOpTracker discards every event.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (t *NoOpTracker) RecordCacheHit(layer, operation string, latency time.Duration) {}
func (t *NoOpTracker) RecordCacheMiss(operation string, latency time.Duration) {}
func (t *NoOpTracker) RecordStaleServed(operation string) {}
func (t *NoOpTracker) RecordAttempt(backend, operation string, ok bool, latency time.Duration) {}
func (t *NoOpTracker) RecordCircuitStateChange(backend, from, to string) {}
func (t *NoOpTracker) RecordFallback(role, model string) {}
func (t *NoOpTracker) RecordRateLimitWait(key string, wait time.Duration) {}
func (t *NoOpTracker) RecordError(component, operation string, err error) {}

// Snapshot returns empty metrics.
func (t *NoOpTracker) Snapshot() types.MetricsSnapshot { return types.MetricsSnapshot{} }

// NoOpPublisher is a no-operation metrics publisher for testing or when disabled.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Gauge(name string, value float64, tags ...string) {}
func (p *NoOpPublisher) Incr(name string, tags ...string) {}
func (p *NoOpPublisher) Count(name string, value int64, tags ...string) {}
func (p *NoOpPublisher) Histogram(name string, value float64, tags ...string) {}
func (p *NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (p *NoOpPublisher) Event(title, text, alertType string, tags ...string) {}
func (p *NoOpPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics) {}
func (p *NoOpPublisher) Close() error { return nil }

var (
	_ types.MetricsRecorder = (*NoOpTracker)(nil)
	_ types.Publisher       = (*NoOpPublisher)(nil)
)
