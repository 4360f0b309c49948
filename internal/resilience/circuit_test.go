package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/routewise/internal/config"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func breakerConfig(threshold int, cooldown time.Duration) config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		Cooldown:         config.Duration(cooldown),
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("yfinance", config.CircuitBreakerConfig{Enabled: true}, nil)

	if cb.threshold != 3 {
		t.Errorf("threshold = %v, want 3", cb.threshold)
	}
	if cb.cooldown != 300*time.Second {
		t.Errorf("cooldown = %v, want 300s", cb.cooldown)
	}
	if cb.Name() != "yfinance" {
		t.Errorf("Name() = %q, want yfinance", cb.Name())
	}
	if !cb.Allow() {
		t.Error("new breaker should allow")
	}
}

func TestCircuitBreakerTrips(t *testing.T) {
	clock := newManualClock()
	cb := NewCircuitBreaker("alpha_vantage", breakerConfig(3, time.Minute), clock.Now)

	if cb.RecordFailure() || cb.RecordFailure() {
		t.Fatal("tripped before threshold")
	}
	if !cb.Allow() {
		t.Fatal("should allow below threshold")
	}
	if !cb.RecordFailure() {
		t.Fatal("third failure should trip")
	}
	if cb.Allow() {
		t.Error("open circuit should reject")
	}
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}

	stats := cb.Stats()
	if stats.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after trip", stats.ConsecutiveFailures)
	}
	if !stats.OpenUntil.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("OpenUntil = %v, want now+1m", stats.OpenUntil)
	}
	if stats.Trips != 1 {
		t.Errorf("Trips = %d, want 1", stats.Trips)
	}
}

func TestCircuitBreakerCooldown(t *testing.T) {
	clock := newManualClock()
	cb := NewCircuitBreaker("b", breakerConfig(1, time.Minute), clock.Now)
	cb.RecordFailure()

	clock.Advance(59 * time.Second)
	if cb.Allow() {
		t.Error("should reject before cooldown elapses")
	}

	clock.Advance(time.Second)
	if !cb.Allow() {
		t.Error("should allow once open_until is reached")
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker("b", breakerConfig(3, time.Minute), nil)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.RecordFailure() {
		t.Error("success should have cleared the failure count")
	}
	if got := cb.Stats().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}

func TestCircuitBreakerCallbacks(t *testing.T) {
	clock := newManualClock()
	cb := NewCircuitBreaker("finnhub", breakerConfig(2, time.Minute), clock.Now)

	var mu sync.Mutex
	var transitions []string
	cb.SetOnStateChange(func(name string, from, to State) {
		// Reading state inside the callback must not deadlock.
		_ = cb.State()
		mu.Lock()
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		mu.Unlock()
	})

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Minute)
	cb.Allow()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"finnhub:closed->open", "finnhub:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("b", breakerConfig(1, time.Hour), nil)
	cb.RecordFailure()
	cb.Reset()

	if !cb.Allow() {
		t.Error("Reset() should close the circuit")
	}
}

func TestDisabledCircuitBreaker(t *testing.T) {
	cb := NewDisabledCircuitBreaker()
	for i := 0; i < 10; i++ {
		if cb.RecordFailure() {
			t.Fatal("disabled breaker tripped")
		}
	}
	if !cb.Allow() || cb.State() != StateClosed {
		t.Error("disabled breaker should always allow")
	}
}

func TestBreakerRegistry(t *testing.T) {
	t.Run("one breaker per name", func(t *testing.T) {
		r := NewBreakerRegistry(breakerConfig(1, time.Hour), nil)
		if r.Get("a") != r.Get("a") {
			t.Error("Get() returned different breakers for the same name")
		}
		r.Get("a").RecordFailure()
		if r.Get("a").Allow() {
			t.Error("a should be open")
		}
		if !r.Get("b").Allow() {
			t.Error("b should be unaffected")
		}
		if n := r.OpenCount(); n != 1 {
			t.Errorf("OpenCount() = %d, want 1", n)
		}
	})

	t.Run("reset empties state", func(t *testing.T) {
		r := NewBreakerRegistry(breakerConfig(1, time.Hour), nil)
		r.Get("a").RecordFailure()
		r.Reset()
		if len(r.Names()) != 0 {
			t.Errorf("Names() = %v, want empty", r.Names())
		}
		if !r.Get("a").Allow() {
			t.Error("a should allow after Reset()")
		}
	})

	t.Run("disabled config", func(t *testing.T) {
		r := NewBreakerRegistry(config.CircuitBreakerConfig{Enabled: false, FailureThreshold: 1}, nil)
		r.Get("a").RecordFailure()
		if !r.Get("a").Allow() {
			t.Error("disabled registry should always allow")
		}
	})

	t.Run("callback reaches breakers created later", func(t *testing.T) {
		r := NewBreakerRegistry(breakerConfig(1, time.Hour), nil)
		var trips atomic.Int32
		r.SetOnStateChange(func(name string, from, to State) {
			if to == StateOpen {
				trips.Add(1)
			}
		})
		r.Get("late").RecordFailure()
		if trips.Load() != 1 {
			t.Errorf("trips = %d, want 1", trips.Load())
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewBreakerRegistry(breakerConfig(1000, time.Hour), nil)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b := r.Get("shared")
				b.Allow()
				b.RecordFailure()
				_ = r.Snapshot()
			}()
		}
		wg.Wait()
		if got := r.Get("shared").Stats().ConsecutiveFailures; got != 50 {
			t.Errorf("ConsecutiveFailures = %d, want 50", got)
		}
	})
}
