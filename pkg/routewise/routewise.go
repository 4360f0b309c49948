package routewise

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/LavishGent/routewise/internal/audit"
	"github.com/LavishGent/routewise/internal/cache"
	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/internal/metrics"
	"github.com/LavishGent/routewise/internal/resilience"
	"github.com/LavishGent/routewise/internal/router"
	"github.com/LavishGent/routewise/internal/types"
)

// Service wires the response cache, resilience policy, audit sink and
// metrics around a vendor router, and builds model routers on demand.
//
//nolint:govet // Service struct - logical grouping prioritized over alignment
type Service struct {
	cfg    *config.Config
	opts   *types.Options
	logger *slog.Logger

	router  *router.Router
	cache   *cache.Manager
	limiter *resilience.RateLimiter
	clients llm.ClientFactory

	audit     audit.Sink
	tracker   *metrics.Tracker
	publisher types.Publisher
	reporter  *metrics.HealthReporter

	closeOnce sync.Once
	closeErr  error
}

// New builds a Service from cfg. A nil cfg uses DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	so := &serviceOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(so)
		}
	}
	o := &so.Options
	logger := types.SlogFrom(o.Logger)
	o.Logger = logger

	s := &Service{
		cfg:     cfg,
		opts:    o,
		logger:  logger.With("component", "routewise"),
		limiter: resilience.NewRateLimiter(o.Clock, nil),
		clients: so.clients,
	}

	if o.Metrics == nil {
		s.tracker = metrics.NewTracker()
		o.Metrics = s.tracker
	}
	pub, err := metrics.NewPublisher(&cfg.Metrics, logger)
	if err != nil {
		return nil, err
	}
	s.publisher = pub
	if s.tracker != nil {
		s.tracker.SetPublisher(pub)
	}

	if o.Audit == nil {
		sink, err := audit.New(&cfg.Audit, logger)
		if err != nil {
			_ = s.shutdown()
			return nil, err
		}
		s.audit = sink
		o.Audit = sink
	}

	var responses types.ResponseCache
	if cfg.Cache.Enabled && !o.DisableCache {
		m, err := cache.NewManager(cfg.Cache, o)
		if err != nil {
			_ = s.shutdown()
			return nil, err
		}
		s.cache = m
		responses = m
	}

	policy := resilience.NewDisabledPolicy()
	if !o.DisableResilience {
		policy = resilience.NewPolicy(cfg, o.Clock)
	}
	s.router = router.New(cfg, so.registry, responses, policy, o)

	if cfg.Metrics.Enabled && s.tracker != nil {
		s.reporter = metrics.NewHealthReporter(s.tracker, pub, cfg.Metrics.PublishInterval.Std(), s.enrichHealth, logger)
		s.reporter.Start(context.Background())
	}
	return s, nil
}

// NewFromFile loads a JSON or YAML config with environment overrides and
// builds a Service from it.
func NewFromFile(path string, opts ...Option) (*Service, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Config returns a default configuration that can be modified before
// calling New.
func Config() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests: in-memory
// cache, no redis, no audit file, no metrics.
func TestConfig() *config.Config {
	return config.ForTesting()
}

// Route runs operation against its registered vendors.
func (s *Service) Route(ctx context.Context, operation string, args []any, kwargs map[string]any) (string, error) {
	timer := metrics.NewTimer(s.publisher, "route.duration", metrics.OperationTag(operation))
	out, err := s.router.Route(ctx, operation, args, kwargs)
	timer.StopWithStatus(err)
	return out, err
}

// Register adds vendor implementations for operation.
func (s *Service) Register(operation, vendor string, impls ...Implementation) error {
	return s.router.Registry().Register(operation, vendor, impls...)
}

// SetVendorAvailable marks vendor as usable or not without unregistering it.
func (s *Service) SetVendorAvailable(vendor string, available bool) {
	s.router.Registry().SetAvailable(vendor, available)
}

// Registry returns the vendor registry.
func (s *Service) Registry() *Registry {
	return s.router.Registry()
}

// Models builds the deep and quick model routers for the configured LLM
// provider. Routers built by one Service share rate-limit windows.
func (s *Service) Models(ctx context.Context, opts ...llm.FactoryOption) (*ModelRouters, error) {
	base := []llm.FactoryOption{
		llm.WithRuntime(s.opts),
		llm.WithRateLimiter(s.limiter),
	}
	if s.clients != nil {
		base = append(base, llm.WithClientFactory(s.clients))
	}
	return llm.BuildModelRouters(ctx, s.cfg, append(base, opts...)...)
}

// Health reports vendor circuits and cache layers.
func (s *Service) Health(ctx context.Context) RouterHealth {
	h := s.router.Health()
	if s.cache == nil {
		h.Cache = types.CacheHealth{Status: types.HealthStatusHealthy}
		return h
	}
	h.Cache = s.cache.Health(ctx)
	if h.Cache.Status > h.Status {
		h.Status = h.Cache.Status
	}
	return h
}

// Metrics returns a snapshot of the built-in tracker. It is empty when a
// custom recorder was supplied with WithMetrics.
func (s *Service) Metrics() MetricsSnapshot {
	if s.tracker == nil {
		return MetricsSnapshot{}
	}
	return s.tracker.Snapshot()
}

// MetricsHandler returns the Prometheus /metrics handler when the
// prometheus publisher is enabled.
func (s *Service) MetricsHandler() (http.Handler, bool) {
	return metrics.PrometheusHandler(s.publisher)
}

// ResetState closes every vendor circuit and forgets failure counts.
func (s *Service) ResetState() {
	s.router.ResetState()
}

// ClearCache removes every cached response.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// Close stops background publishing, then flushes the audit sink and closes
// the cache and publishers. Calling Close more than once is safe.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Service) shutdown() error {
	if s.reporter != nil {
		s.reporter.Stop()
	}
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close(cache.DefaultShutdownTimeout))
	}
	if s.tracker != nil {
		s.tracker.SetPublisher(nil)
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) enrichHealth(m *types.PublisherHealthMetrics) {
	for _, b := range s.router.Health().Backends {
		if b.CircuitState == resilience.StateOpen.String() {
			m.OpenCircuits++
		}
	}
	if s.cache == nil {
		return
	}
	h := s.cache.Health(context.Background())
	m.CacheEntries = h.StoredEntries
	m.CacheConnected = h.StoreAvailable
}
