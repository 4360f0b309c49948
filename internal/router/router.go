package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/routewise/internal/audit"
	"github.com/LavishGent/routewise/internal/cache"
	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/metrics"
	"github.com/LavishGent/routewise/internal/resilience"
	"github.com/LavishGent/routewise/internal/types"
)

// DefaultVendor is the primary used when neither the operation nor its
// category has a configured vendor.
const DefaultVendor = "default"

// Router routes operations to vendors with cache, fallback and circuit
// breaking.
//
//nolint:govet // Router struct - logical grouping prioritized over alignment
type Router struct {
	cfg      *config.Config
	registry *Registry
	cache    types.ResponseCache
	policy   *resilience.Policy
	logger   *slog.Logger
	metrics  types.MetricsRecorder
	audit    types.AuditSink
	clock    types.Clock

	unavailable map[string]bool
	group       singleflight.Group
}

// New creates a router. A nil cache disables caching and a nil policy
// disables circuit breaking and bulkheads.
func New(cfg *config.Config, registry *Registry, responses types.ResponseCache, policy *resilience.Policy, opts *types.Options) *Router {
	if opts == nil {
		opts = &types.Options{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if responses == nil || !cfg.Cache.Enabled || opts.DisableCache {
		responses = cache.DisabledResponseCache{}
	}
	if policy == nil {
		policy = resilience.NewDisabledPolicy()
	}

	r := &Router{
		cfg:         cfg,
		registry:    registry,
		cache:       responses,
		policy:      policy,
		logger:      types.SlogFrom(opts.Logger).With("component", "vendor-router"),
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		clock:       opts.Clock,
		unavailable: make(map[string]bool, len(cfg.Vendors.Unavailable)),
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNoOpTracker()
	}
	if r.audit == nil {
		r.audit = audit.NopSink{}
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	for _, v := range cfg.Vendors.Unavailable {
		r.unavailable[strings.TrimSpace(v)] = true
	}

	policy.SetOnCircuitStateChange(func(backend string, from, to resilience.State) {
		r.metrics.RecordCircuitStateChange(backend, from.String(), to.String())
	})
	return r
}

// Registry returns the vendor registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Route runs operation against its vendors and returns the combined output.
func (r *Router) Route(ctx context.Context, operation string, args []any, kwargs map[string]any) (string, error) {
	ttl := r.cfg.Cache.TTLFor(operation)
	var key string
	if ttl != 0 {
		key = cache.MakeKey(args, kwargs)
		payload, err := r.cache.Get(ctx, operation, key, ttl)
		if err == nil {
			return payload, nil
		}
		if !types.IsCacheMiss(err) {
			r.logger.Warn("Cache read failed", "operation", operation, "error", err)
		}
	}

	if key == "" {
		return r.route(ctx, operation, key, ttl, Call{Operation: operation, Args: args, Kwargs: kwargs})
	}

	// The shared call outlives any single caller; each caller still returns
	// as soon as its own context ends.
	ch := r.group.DoChan(types.CompositeKey(operation, key), func() (any, error) {
		return r.route(context.WithoutCancel(ctx), operation, key, ttl, Call{Operation: operation, Args: args, Kwargs: kwargs})
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *Router) route(ctx context.Context, operation, key string, ttl time.Duration, call Call) (string, error) {
	primaries, err := r.primaries(operation)
	if err != nil {
		return "", err
	}
	order := r.fallbackOrder(operation, primaries)
	r.logger.Debug("Vendor fallback order",
		"operation", operation,
		"primary", strings.Join(primaries, " -> "),
		"order", strings.Join(order, " -> "))

	var (
		results   []string
		firstOK   string
		attempted int
		errs      []error
	)
	for i, vendor := range order {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		impls, ok := r.registry.Implementations(operation, vendor)
		if !ok {
			if slices.Contains(primaries, vendor) {
				r.logger.Info("Vendor does not support operation, falling back",
					"vendor", vendor, "operation", operation)
			}
			continue
		}
		if !r.available(vendor) {
			r.logger.Info("Vendor unavailable, skipping", "vendor", vendor, "operation", operation)
			continue
		}
		if len(impls) == 0 {
			r.logger.Info("Vendor has no implementations, skipping", "vendor", vendor, "operation", operation)
			errs = append(errs, fmt.Errorf("%w: %s has no implementations", types.ErrBackendUnavailable, vendor))
			continue
		}
		if !r.policy.Allow(vendor) {
			r.logger.Warn("Vendor skipped due to open circuit",
				"vendor", vendor,
				"operation", operation,
				"openUntil", r.policy.Breakers().Get(vendor).Stats().OpenUntil)
			continue
		}

		out, failures, rejected := r.runVendor(ctx, vendor, impls, call)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		errs = append(errs, rejected...)
		if len(out) == 0 && len(failures) == 0 {
			continue
		}

		attempted++
		if len(out) > 0 {
			r.policy.RecordSuccess(vendor)
			results = append(results, out...)
			if firstOK == "" {
				firstOK = vendor
			}
			r.logger.Debug("Vendor succeeded", "vendor", vendor, "operation", operation, "results", len(out))
			if len(primaries) == 1 {
				break
			}
			continue
		}

		errs = append(errs, failures...)
		var next string
		if i+1 < len(order) {
			next = order[i+1]
		}
		r.vendorFailed(operation, vendor, next, attempted, failures)
	}

	if len(results) == 0 {
		r.logger.Error("All vendor attempts failed", "operation", operation, "attempts", attempted)
		if key != "" {
			stale, err := r.cache.GetStale(ctx, operation, key)
			if err == nil {
				r.logger.Warn("Returning stale cached data after vendor failures (degraded)", "operation", operation)
				r.metrics.RecordStaleServed(operation)
				return stale, nil
			}
		}
		return "", &types.AllBackendsFailedError{Operation: operation, Attempts: attempted, Errs: errs}
	}

	final := results[0]
	if len(results) > 1 {
		final = strings.Join(results, "\n")
	}

	if key != "" {
		if err := r.cache.Set(ctx, operation, key, final, firstOK); err != nil {
			r.logger.Warn("Failed to cache response", "operation", operation, "error", err)
		} else {
			r.logger.Debug("Cached response", "operation", operation, "vendor", firstOK, "ttl", ttl)
		}
	}

	if cost := r.cfg.Vendors.Costs[firstOK]; cost != 0 {
		r.logger.Info("Vendor cost estimate", "vendor", firstOK, "operation", operation, "credits", cost)
	} else {
		r.logger.Debug("Vendor cost estimate", "vendor", firstOK, "operation", operation, "credits", cost)
	}
	return final, nil
}

// runVendor calls each implementation of vendor in order. A rate-limited
// implementation ends the vendor's turn. Calls turned away by the bulkhead
// or cancelled are returned as rejected; they say nothing about the
// vendor's health.
func (r *Router) runVendor(ctx context.Context, vendor string, impls []Implementation, call Call) (out []string, failures, rejected []error) {
	for i, impl := range impls {
		start := time.Now()
		var result string
		err := r.policy.Execute(ctx, vendor, func(ctx context.Context) error {
			var err error
			result, err = impl(ctx, call)
			return err
		})
		if err == nil {
			r.metrics.RecordAttempt(vendor, call.Operation, true, time.Since(start))
			out = append(out, result)
			continue
		}

		err = fmt.Errorf("%s[%d]: %w", vendor, i, err)
		switch {
		case resilience.IsBulkheadError(err):
			r.logger.Warn("Vendor bulkhead saturated, skipping",
				"vendor", vendor, "operation", call.Operation, "error", err)
			rejected = append(rejected, err)
			return out, failures, rejected
		case errors.Is(err, context.Canceled):
			rejected = append(rejected, err)
			return out, failures, rejected
		}

		r.metrics.RecordAttempt(vendor, call.Operation, false, time.Since(start))
		failures = append(failures, err)
		if resilience.IsRateLimit(err) {
			r.logger.Warn("Vendor rate limited, falling back to next vendor",
				"vendor", vendor, "operation", call.Operation, "error", err)
			break
		}
		r.logger.Warn("Vendor implementation failed",
			"vendor", vendor, "operation", call.Operation, "implementation", i, "error", err)
	}
	return out, failures, rejected
}

// vendorFailed records a vendor that produced nothing. attempt is the
// 1-based count of vendors actually called so far and next is the vendor
// tried after it, empty when the order is exhausted.
func (r *Router) vendorFailed(operation, vendor, next string, attempt int, errs []error) {
	err := errors.Join(errs...)
	r.logger.Warn("Vendor produced no results",
		"vendor", vendor, "operation", operation, "attempt", attempt, "next", next)
	r.audit.Record(types.AuditRecord{
		"event":       "vendor_failure",
		"operation":   operation,
		"vendor":      vendor,
		"attempt":     attempt,
		"next_vendor": next,
		"error":       err.Error(),
	})
	r.metrics.RecordError("vendor-router", operation, err)

	if !r.policy.RecordFailure(vendor) {
		return
	}
	cooldown := r.cfg.CircuitBreaker.Cooldown.Std()
	openUntil := r.policy.Breakers().Get(vendor).Stats().OpenUntil
	r.logger.Warn("Circuit breaker tripped for vendor",
		"vendor", vendor,
		"threshold", r.cfg.CircuitBreaker.FailureThreshold,
		"cooldown", cooldown)
	r.audit.Record(types.AuditRecord{
		"event":      "circuit_open",
		"operation":  operation,
		"vendor":     vendor,
		"cooldown_s": cooldown.Seconds(),
		"open_until": openUntil.UTC().Format(time.RFC3339Nano),
	})
}

// primaries returns the configured vendor list of operation.
func (r *Router) primaries(operation string) ([]string, error) {
	if len(r.registry.Vendors(operation)) == 0 {
		return nil, fmt.Errorf("%w: %q has no registered vendors", types.ErrUnknownOperation, operation)
	}
	if spec, ok := r.cfg.Vendors.ToolVendors[operation]; ok {
		if list := types.SplitList(spec); len(list) > 0 {
			return list, nil
		}
	}
	if category, err := CategoryFor(operation); err == nil {
		if list := types.SplitList(r.cfg.Vendors.DataVendors[category]); len(list) > 0 {
			return list, nil
		}
	}
	return []string{DefaultVendor}, nil
}

// fallbackOrder lists primaries first, then the remaining registered
// vendors, stably re-sorted by the configured priority order.
func (r *Router) fallbackOrder(operation string, primaries []string) []string {
	order := slices.Clone(primaries)
	for _, v := range r.registry.Vendors(operation) {
		if !slices.Contains(order, v) {
			order = append(order, v)
		}
	}

	priority := types.SplitList(r.cfg.Vendors.PriorityOrder)
	if len(priority) == 0 {
		return order
	}
	rank := func(v string) int {
		if i := slices.Index(priority, v); i >= 0 {
			return i
		}
		return len(priority)
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return rank(a) - rank(b)
	})
	return order
}

func (r *Router) available(vendor string) bool {
	return !r.unavailable[vendor] && r.registry.Available(vendor)
}

// ResetState clears every vendor's failure count and open circuit.
func (r *Router) ResetState() {
	r.policy.Reset()
}

// Health reports the circuit state of every vendor seen so far.
func (r *Router) Health() types.RouterHealth {
	backends := r.policy.Snapshot()
	for name, h := range backends {
		if !r.available(name) {
			h.Available = false
			backends[name] = h
		}
	}

	status := types.HealthStatusHealthy
	for _, h := range backends {
		if h.CircuitState == resilience.StateOpen.String() {
			status = types.HealthStatusDegraded
			break
		}
	}
	return types.RouterHealth{
		Timestamp: r.clock(),
		Status:    status,
		Backends:  backends,
	}
}
