package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all systems operating normally.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates partial functionality (e.g., a circuit is open).
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates critical failure.
	HealthStatusUnhealthy
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// RouterHealth is a point-in-time view of the routing layer.
type RouterHealth struct {
	Timestamp time.Time
	Status    HealthStatus
	Backends  map[string]BackendHealth
	Cache     CacheHealth
}

// BackendHealth reports the failure state of one backend.
type BackendHealth struct {
	Available           bool
	CircuitState        string
	ConsecutiveFailures int
	OpenUntil           time.Time
}

// CacheHealth reports per-layer availability of the response cache.
type CacheHealth struct {
	Status         HealthStatus
	Enabled        bool
	StoreAvailable bool
	MemoryEntries  int
	MemoryHitRatio float64
	RedisEnabled   bool
	RedisConnected bool
	RedisPending   int
	RedisDropped   int64
	StoredEntries  int64

	MemoryOperations map[string]OperationCacheStats
}

// MetricsSnapshot contains a point-in-time view of routing metrics.
//
//nolint:govet // Metrics struct with many counters - grouping by category improves readability
type MetricsSnapshot struct {
	Timestamp time.Time

	// Cache counters
	CacheHits      int64
	CacheMisses    int64
	StaleResponses int64
	MemoryHits     int64
	RedisHits      int64
	StoreHits      int64

	// Backend counters
	Attempts      int64
	Successes     int64
	Failures      int64
	CircuitTrips  int64
	ErrorCount    int64
	PerBackend    map[string]BackendCounters
	LLMFallbacks  int64
	RateLimitWait time.Duration

	// Latency metrics (milliseconds)
	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64
}

// BackendCounters are per-backend attempt outcomes.
type BackendCounters struct {
	Attempts  int64
	Successes int64
	Failures  int64
}

// CacheHitRatio calculates the response cache hit ratio.
func (s *MetricsSnapshot) CacheHitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// FailureRatio calculates the share of backend attempts that failed.
func (s *MetricsSnapshot) FailureRatio() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Attempts)
}
