package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

// RateWindow is the span of the sliding call log.
const RateWindow = 60 * time.Second

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimiter caps calls per key within a sliding window. Each key keeps the
// instants of its admitted calls.
type RateLimiter struct {
	window time.Duration
	clock  types.Clock
	sleep  Sleeper

	mu      sync.Mutex
	windows map[string][]time.Time
	onWait  func(key string, wait time.Duration)
}

// NewRateLimiter creates a limiter over RateWindow. Nil clock and sleeper
// select time.Now and SleepContext.
func NewRateLimiter(clock types.Clock, sleep Sleeper) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &RateLimiter{
		window:  RateWindow,
		clock:   clock,
		sleep:   sleep,
		windows: make(map[string][]time.Time),
	}
}

// SetOnWait registers a callback invoked before every sleep.
func (l *RateLimiter) SetOnWait(fn func(key string, wait time.Duration)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onWait = fn
}

// Wait blocks until a call under key is admitted, then records it. A
// non-positive limit or an empty key admits immediately.
func (l *RateLimiter) Wait(ctx context.Context, key string, limit int) error {
	if limit <= 0 || key == "" {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.clock()
		calls := l.evict(key, now)
		if len(calls) < limit {
			l.windows[key] = append(calls, now)
			l.mu.Unlock()
			return nil
		}
		wait := calls[0].Add(l.window).Sub(now)
		onWait := l.onWait
		l.mu.Unlock()

		if onWait != nil {
			onWait(key, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops instants that left the window. mu must be held.
func (l *RateLimiter) evict(key string, now time.Time) []time.Time {
	calls := l.windows[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		calls = append(calls[:0:0], calls[i:]...)
		l.windows[key] = calls
	}
	return calls
}

// Count returns the number of calls of key inside the window.
func (l *RateLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.evict(key, l.clock()))
}

// Reset empties every window.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}
