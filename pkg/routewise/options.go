package routewise

import (
	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/internal/router"
	"github.com/LavishGent/routewise/internal/types"
)

type serviceOptions struct {
	types.Options
	registry *router.Registry
	clients  llm.ClientFactory
}

// Option customises New.
type Option func(*serviceOptions)

func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		o.Logger = logger
	}
}

// WithMetrics replaces the built-in tracker. Service.Metrics then returns
// an empty snapshot and no health batches are published.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		o.Metrics = recorder
	}
}

// WithAudit replaces the configured audit file.
func WithAudit(sink AuditSink) Option {
	return func(o *serviceOptions) {
		o.Audit = sink
	}
}

func WithSerializer(serializer Serializer) Option {
	return func(o *serviceOptions) {
		o.Serializer = serializer
	}
}

func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		o.Clock = clock
	}
}

// WithCachePath overrides cache.path; an empty path keeps the config value.
func WithCachePath(path string) Option {
	return func(o *serviceOptions) {
		o.CachePath = path
	}
}

// WithRegistry routes over registry instead of an empty one.
func WithRegistry(registry *Registry) Option {
	return func(o *serviceOptions) {
		o.registry = registry
	}
}

// WithClientFactory replaces the openai-go clients built by Models.
func WithClientFactory(factory ClientFactory) Option {
	return func(o *serviceOptions) {
		o.clients = factory
	}
}

func WithoutCache() Option {
	return func(o *serviceOptions) {
		o.DisableCache = true
	}
}

func WithoutRedis() Option {
	return func(o *serviceOptions) {
		o.DisableRedis = true
	}
}

func WithoutResilience() Option {
	return func(o *serviceOptions) {
		o.DisableResilience = true
	}
}
