// Package metrics collects routing metrics and publishes them to logging,
// DataDog or Prometheus backends.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Tracker counts cache, backend and fallback events in memory. When a
// publisher is attached each event is also forwarded to it.
type Tracker struct {
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	staleServed  atomic.Int64
	memoryHits   atomic.Int64
	redisHits    atomic.Int64
	storeHits    atomic.Int64
	attempts     atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	circuitTrips atomic.Int64
	errorCount   atomic.Int64
	fallbacks    atomic.Int64
	rateWaitNs   atomic.Int64

	backendMu  sync.Mutex
	perBackend map[string]*types.BackendCounters

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int

	publisher atomic.Pointer[publisherRef]
}

type publisherRef struct {
	p types.Publisher
}

func NewTracker() *Tracker {
	return &Tracker{
		perBackend:    make(map[string]*types.BackendCounters),
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

// SetPublisher forwards every recorded event to p. A nil p detaches.
func (t *Tracker) SetPublisher(p types.Publisher) {
	if p == nil {
		t.publisher.Store(nil)
		return
	}
	t.publisher.Store(&publisherRef{p: p})
}

func (t *Tracker) pub() types.Publisher {
	if ref := t.publisher.Load(); ref != nil {
		return ref.p
	}
	return nil
}

func (t *Tracker) RecordCacheHit(layer, operation string, latency time.Duration) {
	switch layer {
	case "memory":
		t.memoryHits.Add(1)
	case "redis":
		t.redisHits.Add(1)
	case "sqlite":
		t.storeHits.Add(1)
	}
	t.cacheHits.Add(1)
	if p := t.pub(); p != nil {
		p.Incr("cache.hit", LayerTag(layer), OperationTag(operation))
		p.Timing("cache.latency", latency, StatusTag("hit"))
	}
}

func (t *Tracker) RecordCacheMiss(operation string, latency time.Duration) {
	t.cacheMisses.Add(1)
	if p := t.pub(); p != nil {
		p.Incr("cache.miss", OperationTag(operation))
		p.Timing("cache.latency", latency, StatusTag("miss"))
	}
}

// RecordStaleServed counts a degraded response served from an expired entry.
func (t *Tracker) RecordStaleServed(operation string) {
	t.staleServed.Add(1)
	if p := t.pub(); p != nil {
		p.Incr("cache.stale", OperationTag(operation))
	}
}

// RecordAttempt records one backend call and its latency.
func (t *Tracker) RecordAttempt(backend, operation string, success bool, latency time.Duration) {
	t.attempts.Add(1)
	if success {
		t.successes.Add(1)
	} else {
		t.failures.Add(1)
	}

	t.backendMu.Lock()
	c, ok := t.perBackend[backend]
	if !ok {
		c = &types.BackendCounters{}
		t.perBackend[backend] = c
	}
	c.Attempts++
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
	t.backendMu.Unlock()

	t.recordLatency(latency)

	if p := t.pub(); p != nil {
		status := "success"
		if !success {
			status = "failure"
		}
		p.Incr("backend.attempt", BackendTag(backend), OperationTag(operation), StatusTag(status))
		p.Timing("backend.latency", latency, BackendTag(backend))
	}
}

// RecordCircuitStateChange counts transitions; transitions to open are trips.
func (t *Tracker) RecordCircuitStateChange(backend, from, to string) {
	if to == "open" {
		t.circuitTrips.Add(1)
	}
	if p := t.pub(); p != nil {
		p.Incr("circuit.transition", BackendTag(backend), CircuitStateTag(to))
		if to == "open" {
			p.Event("Circuit opened", "backend "+backend+" circuit opened", "warning", BackendTag(backend))
		}
	}
}

// RecordFallback counts a failed model attempt that moved on or retried.
func (t *Tracker) RecordFallback(role, model string) {
	t.fallbacks.Add(1)
	if p := t.pub(); p != nil {
		p.Incr("llm.fallback", RoleTag(role), ModelTag(model))
	}
}

func (t *Tracker) RecordRateLimitWait(key string, wait time.Duration) {
	t.rateWaitNs.Add(int64(wait))
	if p := t.pub(); p != nil {
		p.Timing("ratelimit.wait", wait, Tag("group", key))
	}
}

// RecordError records an error.
func (t *Tracker) RecordError(component, operation string, err error) {
	t.errorCount.Add(1)
	if p := t.pub(); p != nil {
		p.Incr("error", Tag("component", component), OperationTag(operation))
	}
}

// recordLatency adds a latency measurement using a circular buffer.
// This is O(1) time complexity with no memory allocations.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns current metrics snapshot.
func (t *Tracker) Snapshot() types.MetricsSnapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			// Buffer is full - oldest data starts at latencyIndex
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	t.backendMu.Lock()
	perBackend := make(map[string]types.BackendCounters, len(t.perBackend))
	for name, c := range t.perBackend {
		perBackend[name] = *c
	}
	t.backendMu.Unlock()

	snapshot := types.MetricsSnapshot{
		Timestamp:      time.Now(),
		CacheHits:      t.cacheHits.Load(),
		CacheMisses:    t.cacheMisses.Load(),
		StaleResponses: t.staleServed.Load(),
		MemoryHits:     t.memoryHits.Load(),
		RedisHits:      t.redisHits.Load(),
		StoreHits:      t.storeHits.Load(),
		Attempts:       t.attempts.Load(),
		Successes:      t.successes.Load(),
		Failures:       t.failures.Load(),
		CircuitTrips:   t.circuitTrips.Load(),
		ErrorCount:     t.errorCount.Load(),
		PerBackend:     perBackend,
		LLMFallbacks:   t.fallbacks.Load(),
		RateLimitWait:  time.Duration(t.rateWaitNs.Load()),
	}

	if len(latencyCopy) > 0 {
		snapshot.AvgLatencyMs = float64(avgDuration(latencyCopy).Milliseconds())
		snapshot.P50LatencyMs = float64(percentile(latencyCopy, 50).Milliseconds())
		snapshot.P95LatencyMs = float64(percentile(latencyCopy, 95).Milliseconds())
		snapshot.P99LatencyMs = float64(percentile(latencyCopy, 99).Milliseconds())
	}

	return snapshot
}

// HealthMetrics derives the periodic publisher batch from the counters.
// Cache entry counts and circuit state come from the caller.
func (t *Tracker) HealthMetrics() *types.PublisherHealthMetrics {
	s := t.Snapshot()
	return &types.PublisherHealthMetrics{
		CacheHitRatio:    s.CacheHitRatio(),
		BackendAttempts:  s.Attempts,
		BackendFailures:  s.Failures,
		Fallbacks:        s.LLMFallbacks,
		StaleResponses:   s.StaleResponses,
		AverageLatencyMs: s.AvgLatencyMs,
	}
}

// Reset clears all metrics.
func (t *Tracker) Reset() {
	for _, c := range []*atomic.Int64{
		&t.cacheHits, &t.cacheMisses, &t.staleServed,
		&t.memoryHits, &t.redisHits, &t.storeHits,
		&t.attempts, &t.successes, &t.failures,
		&t.circuitTrips, &t.errorCount, &t.fallbacks, &t.rateWaitNs,
	} {
		c.Store(0)
	}

	t.backendMu.Lock()
	t.perBackend = make(map[string]*types.BackendCounters)
	t.backendMu.Unlock()

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

// Helper functions for latency calculations

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	slices.Sort(sorted)

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

var _ types.MetricsRecorder = (*Tracker)(nil)
