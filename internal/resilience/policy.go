package resilience

import (
	"context"
	"sync"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// Policy combines the per-backend circuit breakers and bulkheads used by
// the vendor router.
type Policy struct {
	breakers    *BreakerRegistry
	bulkheadCfg config.BulkheadConfig

	mu        sync.RWMutex
	bulkheads map[string]BulkheadExecutor
}

// NewPolicy creates a policy from cfg. The clock drives breaker cooldowns.
func NewPolicy(cfg *config.Config, clock types.Clock) *Policy {
	return &Policy{
		breakers:    NewBreakerRegistry(cfg.CircuitBreaker, clock),
		bulkheadCfg: cfg.Bulkhead,
		bulkheads:   make(map[string]BulkheadExecutor),
	}
}

// NewDisabledPolicy returns a policy whose breakers always allow and whose
// bulkheads never limit.
func NewDisabledPolicy() *Policy {
	return &Policy{
		breakers:  NewBreakerRegistry(config.CircuitBreakerConfig{Enabled: false}, nil),
		bulkheads: make(map[string]BulkheadExecutor),
	}
}

// Allow reports whether backend's circuit is closed.
func (p *Policy) Allow(backend string) bool {
	return p.breakers.Get(backend).Allow()
}

// Execute runs fn inside backend's bulkhead. It does not touch the breaker;
// callers decide what counts as a backend failure.
func (p *Policy) Execute(ctx context.Context, backend string, fn func(context.Context) error) error {
	return p.bulkhead(backend).ExecuteCtx(ctx, fn)
}

func (p *Policy) bulkhead(backend string) BulkheadExecutor {
	p.mu.RLock()
	b, ok := p.bulkheads[backend]
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.bulkheads[backend]; ok {
		return b
	}
	if p.bulkheadCfg.Enabled {
		b = NewBulkhead(p.bulkheadCfg)
	} else {
		b = NewDisabledBulkhead()
	}
	p.bulkheads[backend] = b
	return b
}

// RecordSuccess closes backend's circuit.
func (p *Policy) RecordSuccess(backend string) {
	p.breakers.Get(backend).RecordSuccess()
}

// RecordFailure counts a failure and reports whether the circuit opened.
func (p *Policy) RecordFailure(backend string) bool {
	return p.breakers.Get(backend).RecordFailure()
}

// SetOnCircuitStateChange sets a callback for circuit state changes.
func (p *Policy) SetOnCircuitStateChange(fn func(backend string, from, to State)) {
	p.breakers.SetOnStateChange(fn)
}

// Breakers returns the breaker registry.
func (p *Policy) Breakers() *BreakerRegistry {
	return p.breakers
}

// Reset clears all circuit state.
func (p *Policy) Reset() {
	p.breakers.Reset()
}

// BulkheadStats returns the bulkhead statistics of backend.
func (p *Policy) BulkheadStats(backend string) BulkheadStats {
	return p.bulkhead(backend).Stats()
}

// Snapshot reports the circuit state of every backend seen so far.
func (p *Policy) Snapshot() map[string]types.BackendHealth {
	stats := p.breakers.Snapshot()
	out := make(map[string]types.BackendHealth, len(stats))
	for name, s := range stats {
		out[name] = types.BackendHealth{
			Available:           s.State != StateOpen,
			CircuitState:        s.State.String(),
			ConsecutiveFailures: s.ConsecutiveFailures,
			OpenUntil:           s.OpenUntil,
		}
	}
	return out
}
