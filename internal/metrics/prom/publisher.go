// Package prom provides a Prometheus metrics publisher backed by a private
// registry.
package prom

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// Publisher implements types.Publisher on top of Prometheus vectors.
// Vectors are created on first use; tags of the form "key:value" become
// labels, and the label names of a metric are fixed by its first use.
//
//nolint:govet // Publisher struct - logical grouping prioritized over alignment
type Publisher struct {
	registry   *prometheus.Registry
	registerer prometheus.Registerer
	logger     *slog.Logger
	baseTags   []string

	mu         sync.Mutex
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPublisher creates a publisher with its own registry. Metric names are
// prefixed with cfg.Namespace.
func NewPublisher(cfg *config.PrometheusConfig, logger *slog.Logger, baseTags ...string) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "routewise"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	return &Publisher{
		registry:   reg,
		registerer: prometheus.WrapRegistererWithPrefix(ns+"_", reg),
		logger:     logger.With("component", "prometheus"),
		baseTags:   baseTags,
		gauges:     make(map[string]*prometheus.GaugeVec),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the private registry.
func (p *Publisher) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Publisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	labels := p.labels(tags)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricName(name),
			Help: "Gauge " + name,
		}, labelKeys(labels))
		if !p.register(name, vec) {
			return
		}
		p.gauges[name] = vec
	}
	if g, err := vec.GetMetricWith(labels); err == nil {
		g.Set(value)
	} else {
		p.logger.Debug("Dropping gauge with mismatched labels", "name", name, "error", err)
	}
}

func (p *Publisher) Incr(name string, tags ...string) {
	p.Count(name, 1, tags...)
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	if value < 0 {
		return
	}
	labels := p.labels(tags)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricName(name) + "_total",
			Help: "Counter " + name,
		}, labelKeys(labels))
		if !p.register(name, vec) {
			return
		}
		p.counters[name] = vec
	}
	if c, err := vec.GetMetricWith(labels); err == nil {
		c.Add(float64(value))
	} else {
		p.logger.Debug("Dropping counter with mismatched labels", "name", name, "error", err)
	}
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	p.observe(name, value, prometheus.DefBuckets, tags)
}

// Timing records duration in seconds.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	p.observe(name+"_seconds", duration.Seconds(), prometheus.DefBuckets, tags)
}

func (p *Publisher) observe(name string, value float64, buckets []float64, tags []string) {
	labels := p.labels(tags)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricName(name),
			Help:    "Histogram " + name,
			Buckets: buckets,
		}, labelKeys(labels))
		if !p.register(name, vec) {
			return
		}
		p.histograms[name] = vec
	}
	if o, err := vec.GetMetricWith(labels); err == nil {
		o.Observe(value)
	} else {
		p.logger.Debug("Dropping observation with mismatched labels", "name", name, "error", err)
	}
}

// Event counts events by alert type; Prometheus has no event stream.
func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	p.Incr("events", append(slices.Clip(tags), "alert_type:"+alertType)...)
}

// PublishHealthMetrics sets one gauge per health field.
func (p *Publisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}
	p.Gauge("cache.hit_ratio", m.CacheHitRatio)
	p.Gauge("cache.entries", float64(m.CacheEntries))
	p.Gauge("cache.stale_responses", float64(m.StaleResponses))
	p.Gauge("backend.attempts", float64(m.BackendAttempts))
	p.Gauge("backend.failures", float64(m.BackendFailures))
	p.Gauge("circuit.open", float64(m.OpenCircuits))
	p.Gauge("llm.fallbacks", float64(m.Fallbacks))
	p.Gauge("performance.average_latency_ms", m.AverageLatencyMs)
	connected := 0.0
	if m.CacheConnected {
		connected = 1
	}
	p.Gauge("cache.connected", connected)
}

func (p *Publisher) Close() error {
	return nil
}

// register must be called with p.mu held.
func (p *Publisher) register(name string, c prometheus.Collector) bool {
	if err := p.registerer.Register(c); err != nil {
		p.logger.Debug("Failed to register metric", "name", name, "error", err)
		return false
	}
	return true
}

func (p *Publisher) labels(tags []string) prometheus.Labels {
	out := make(prometheus.Labels, len(p.baseTags)+len(tags))
	for _, tag := range append(slices.Clip(p.baseTags), tags...) {
		key, value, ok := strings.Cut(tag, ":")
		if !ok {
			key, value = tag, "true"
		}
		out[metricName(key)] = value
	}
	return out
}

func labelKeys(labels prometheus.Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// metricName maps dotted metric names onto the Prometheus charset.
func metricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

var _ types.Publisher = (*Publisher)(nil)
