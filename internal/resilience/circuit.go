// Package resilience provides failure isolation for backend calls: circuit
// breakers, a sliding-window rate limiter, rate-limit backoff and bulkheads.
package resilience

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 300 * time.Second
)

// Breaker tracks consecutive failures of one backend.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	// RecordFailure reports whether this failure opened the circuit.
	RecordFailure() bool
	State() State
	Stats() BreakerStats
	Reset()
}

// BreakerStats is a point-in-time view of one breaker.
type BreakerStats struct {
	OpenUntil           time.Time
	State               State
	ConsecutiveFailures int
	Trips               int64
}

// CircuitBreaker opens after a run of consecutive failures and rejects calls
// until the cooldown has elapsed. There is no half-open probing: once
// open_until passes the next call goes through normally.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clock     types.Clock

	mu               sync.Mutex
	consecutiveFails int
	openUntil        time.Time
	trips            atomic.Int64

	onStateChange func(name string, from, to State)
}

// stateTransition allows callbacks to be invoked outside the mutex.
type stateTransition struct {
	name     string
	from     State
	to       State
	callback func(name string, from, to State)
}

func (t *stateTransition) invoke() {
	if t != nil && t.callback != nil {
		t.callback(t.name, t.from, t.to)
	}
}

// NewCircuitBreaker creates a breaker for backend name.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, clock types.Clock) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown.Std(),
		clock:     clock,
	}
	if cb.threshold <= 0 {
		cb.threshold = defaultFailureThreshold
	}
	if cb.cooldown <= 0 {
		cb.cooldown = defaultCooldown
	}
	if cb.clock == nil {
		cb.clock = time.Now
	}
	return cb
}

// Name returns the backend name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow is false while the circuit is open.
func (cb *CircuitBreaker) Allow() bool {
	var transition *stateTransition

	cb.mu.Lock()
	allowed := true
	if !cb.openUntil.IsZero() {
		if cb.clock().Before(cb.openUntil) {
			allowed = false
		} else {
			cb.openUntil = time.Time{}
			transition = cb.transition(StateOpen, StateClosed)
		}
	}
	cb.mu.Unlock()

	transition.invoke()
	return allowed
}

// RecordSuccess clears the failure count and any open window.
func (cb *CircuitBreaker) RecordSuccess() {
	var transition *stateTransition

	cb.mu.Lock()
	cb.consecutiveFails = 0
	if !cb.openUntil.IsZero() {
		cb.openUntil = time.Time{}
		transition = cb.transition(StateOpen, StateClosed)
	}
	cb.mu.Unlock()

	transition.invoke()
}

// RecordFailure counts a failure. Reaching the threshold opens the circuit
// for the cooldown and resets the count.
func (cb *CircuitBreaker) RecordFailure() bool {
	var transition *stateTransition

	cb.mu.Lock()
	cb.consecutiveFails++
	tripped := cb.consecutiveFails >= cb.threshold
	if tripped {
		cb.consecutiveFails = 0
		cb.openUntil = cb.clock().Add(cb.cooldown)
		cb.trips.Add(1)
		transition = cb.transition(StateClosed, StateOpen)
	}
	cb.mu.Unlock()

	transition.invoke()
	return tripped
}

// transition must be called with mu held; the result is invoked after unlock.
func (cb *CircuitBreaker) transition(from, to State) *stateTransition {
	if cb.onStateChange == nil {
		return nil
	}
	return &stateTransition{name: cb.name, from: from, to: to, callback: cb.onStateChange}
}

// State reports StateOpen while calls are rejected.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if !cb.openUntil.IsZero() && cb.clock().Before(cb.openUntil) {
		return StateOpen
	}
	return StateClosed
}

// Stats returns the breaker's counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := BreakerStats{
		State:               cb.stateLocked(),
		ConsecutiveFailures: cb.consecutiveFails,
		Trips:               cb.trips.Load(),
	}
	if stats.State == StateOpen {
		stats.OpenUntil = cb.openUntil
	}
	return stats
}

// SetOnStateChange sets a callback for state changes. It runs after the
// breaker's lock is released and may read breaker state.
func (cb *CircuitBreaker) SetOnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.openUntil = time.Time{}
}

// DisabledCircuitBreaker is a no-op breaker that allows all requests.
type DisabledCircuitBreaker struct{}

// NewDisabledCircuitBreaker creates a disabled circuit breaker.
func NewDisabledCircuitBreaker() *DisabledCircuitBreaker {
	return &DisabledCircuitBreaker{}
}

func (cb *DisabledCircuitBreaker) Allow() bool { return true }
func (cb *DisabledCircuitBreaker) RecordSuccess() {}
func (cb *DisabledCircuitBreaker) RecordFailure() bool { return false }
func (cb *DisabledCircuitBreaker) State() State { return StateClosed }
func (cb *DisabledCircuitBreaker) Stats() BreakerStats { return BreakerStats{} }
func (cb *DisabledCircuitBreaker) Reset() {}

// BreakerRegistry holds one breaker per backend, created on first use.
type BreakerRegistry struct {
	cfg   config.CircuitBreakerConfig
	clock types.Clock

	mu            sync.RWMutex
	breakers      map[string]Breaker
	onStateChange func(name string, from, to State)
}

// NewBreakerRegistry creates an empty registry. When cfg is disabled every
// breaker it hands out allows all calls.
func NewBreakerRegistry(cfg config.CircuitBreakerConfig, clock types.Clock) *BreakerRegistry {
	if clock == nil {
		clock = time.Now
	}
	return &BreakerRegistry{
		cfg:      cfg,
		clock:    clock,
		breakers: make(map[string]Breaker),
	}
}

// Get returns the breaker of name, creating it if needed.
func (r *BreakerRegistry) Get(name string) Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}

	if !r.cfg.Enabled {
		b = NewDisabledCircuitBreaker()
	} else {
		cb := NewCircuitBreaker(name, r.cfg, r.clock)
		cb.SetOnStateChange(r.onStateChange)
		b = cb
	}
	r.breakers[name] = b
	return b
}

// SetOnStateChange sets the callback of current and future breakers.
func (r *BreakerRegistry) SetOnStateChange(fn func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
	for _, b := range r.breakers {
		if cb, ok := b.(*CircuitBreaker); ok {
			cb.SetOnStateChange(fn)
		}
	}
}

// Reset forgets every breaker.
func (r *BreakerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]Breaker)
}

// Names returns the known backend names, sorted.
func (r *BreakerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the stats of every known breaker.
func (r *BreakerRegistry) Snapshot() map[string]BreakerStats {
	r.mu.RLock()
	breakers := make(map[string]Breaker, len(r.breakers))
	for name, b := range r.breakers {
		breakers[name] = b
	}
	r.mu.RUnlock()

	out := make(map[string]BreakerStats, len(breakers))
	for name, b := range breakers {
		out[name] = b.Stats()
	}
	return out
}

// OpenCount returns how many circuits are currently open.
func (r *BreakerRegistry) OpenCount() int {
	n := 0
	for _, s := range r.Snapshot() {
		if s.State == StateOpen {
			n++
		}
	}
	return n
}

var (
	_ Breaker = (*CircuitBreaker)(nil)
	_ Breaker = (*DisabledCircuitBreaker)(nil)
)
