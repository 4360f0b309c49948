package metrics

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

// LoggingPublisher writes metrics to a slog logger. Individual metrics log at
// debug; health batches and events log at info.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

var _ types.Publisher = (*LoggingPublisher)(nil)

// NewLoggingPublisher creates a logging publisher. baseTags are added to
// every metric.
func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) metric(kind, name string, value any, tags []string) {
	p.logger.Debug("Metric",
		"kind", kind,
		"name", name,
		"value", value,
		"tags", p.withBase(tags),
	)
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.metric("gauge", name, value, tags)
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.metric("incr", name, 1, tags)
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.metric("count", name, value, tags)
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.metric("histogram", name, value, tags)
}

// Timing logs duration in milliseconds.
func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.logger.Debug("Metric",
		"kind", "timing",
		"name", name,
		"duration_ms", duration.Milliseconds(),
		"tags", p.withBase(tags),
	)
}

// Event logs circuit transitions and other notable routing events.
func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	level := slog.LevelInfo
	if alertType == "warning" || alertType == "error" {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, title,
		"text", text,
		"alert_type", alertType,
		"tags", p.withBase(tags),
	)
}

// PublishHealthMetrics logs one routing health batch.
func (p *LoggingPublisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}
	p.logger.Info("Routing health",
		"cache_hit_ratio", m.CacheHitRatio,
		"cache_entries", m.CacheEntries,
		"cache_connected", m.CacheConnected,
		"backend_attempts", m.BackendAttempts,
		"backend_failures", m.BackendFailures,
		"open_circuits", m.OpenCircuits,
		"fallbacks", m.Fallbacks,
		"stale_responses", m.StaleResponses,
		"avg_latency_ms", m.AverageLatencyMs,
	)
}

func (p *LoggingPublisher) Close() error { return nil }

func (p *LoggingPublisher) withBase(tags []string) []string {
	switch {
	case len(tags) == 0:
		return p.baseTags
	case len(p.baseTags) == 0:
		return tags
	}
	return append(slices.Clip(p.baseTags), tags...)
}
