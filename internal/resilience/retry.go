package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// AttemptObserver is told about every failed attempt: its number, the error,
// its class, whether it will be retried and how long the wait will be.
type AttemptObserver func(attempt int, err error, class types.ErrorClass, willRetry bool, wait time.Duration)

// RetryPolicy retries rate-limited calls against the same target with
// exponential backoff. Any other failure is returned on the first attempt.
type RetryPolicy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         bool
	sleep          Sleeper

	totalRetries atomic.Int64
	totalSuccess atomic.Int64
	totalFailure atomic.Int64
}

// NewRetryPolicy creates a retry policy. Zero backoff settings fall back to
// 750ms initial, 8s cap and a multiplier of 2; MaxRetries is used as is.
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	rp := &RetryPolicy{
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff.Std(),
		maxBackoff:     cfg.MaxBackoff.Std(),
		multiplier:     cfg.Multiplier,
		jitter:         cfg.Jitter,
		sleep:          SleepContext,
	}

	if rp.maxRetries < 0 {
		rp.maxRetries = 0
	}
	if rp.initialBackoff <= 0 {
		rp.initialBackoff = 750 * time.Millisecond
	}
	if rp.maxBackoff <= 0 {
		rp.maxBackoff = 8 * time.Second
	}
	if rp.multiplier <= 0 {
		rp.multiplier = 2.0
	}

	return rp
}

// NewDisabledRetryPolicy returns a policy that never retries.
func NewDisabledRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(config.RetryConfig{MaxRetries: 0})
}

// SetSleeper replaces the sleep function, for tests.
func (rp *RetryPolicy) SetSleeper(s Sleeper) {
	if s != nil {
		rp.sleep = s
	}
}

// MaxRetries returns how many times a rate-limited call is retried.
func (rp *RetryPolicy) MaxRetries() int {
	return rp.maxRetries
}

// Do calls fn until it succeeds, fails with a non rate-limit error, or the
// retries are used up. The last error is returned unchanged.
func (rp *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, observe AttemptObserver) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			rp.totalSuccess.Add(1)
			return nil
		}

		class := Classify(err)
		willRetry := class == types.ClassRateLimited && attempt <= rp.maxRetries
		var wait time.Duration
		if willRetry {
			wait = rp.Backoff(attempt)
		}
		if observe != nil {
			observe(attempt, err, class, willRetry, wait)
		}

		if !willRetry {
			rp.totalFailure.Add(1)
			return err
		}

		rp.totalRetries.Add(1)
		if sleepErr := rp.sleep(ctx, wait); sleepErr != nil {
			rp.totalFailure.Add(1)
			return sleepErr
		}
	}
}

// Backoff returns min(initial * multiplier^(attempt-1), max), with ±25%
// jitter when enabled.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(rp.initialBackoff) * math.Pow(rp.multiplier, float64(attempt-1))
	if backoff > float64(rp.maxBackoff) {
		backoff = float64(rp.maxBackoff)
	}

	if rp.jitter {
		jitterRange := backoff * 0.25
		backoff += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	return time.Duration(backoff)
}

// Stats returns retry statistics.
func (rp *RetryPolicy) Stats() (retries, success, failure int64) {
	return rp.totalRetries.Load(), rp.totalSuccess.Load(), rp.totalFailure.Load()
}
