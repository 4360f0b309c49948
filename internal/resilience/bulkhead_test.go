package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LavishGent/routewise/internal/config"
)

func TestNewBulkhead(t *testing.T) {
	t.Run("creates with config values", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  20,
			MaxQueue:       10,
			AcquireTimeout: config.Duration(500 * time.Millisecond),
		})

		if b.maxConcurrent != 20 {
			t.Errorf("maxConcurrent = %v, want 20", b.maxConcurrent)
		}
		if b.maxQueue != 10 {
			t.Errorf("maxQueue = %v, want 10", b.maxQueue)
		}
		if b.acquireTimeout != 500*time.Millisecond {
			t.Errorf("acquireTimeout = %v, want 500ms", b.acquireTimeout)
		}
	})

	t.Run("applies defaults for zero values", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{})

		if b.maxConcurrent != 16 {
			t.Errorf("maxConcurrent = %v, want 16", b.maxConcurrent)
		}
		if b.acquireTimeout != 5*time.Second {
			t.Errorf("acquireTimeout = %v, want 5s", b.acquireTimeout)
		}
	})
}

func TestBulkheadExecute(t *testing.T) {
	b := NewBulkhead(config.BulkheadConfig{MaxConcurrent: 2})
	testErr := errors.New("test error")

	if err := b.ExecuteCtx(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("ExecuteCtx() error = %v", err)
	}
	if err := b.ExecuteCtx(context.Background(), func(ctx context.Context) error { return testErr }); !errors.Is(err, testErr) {
		t.Errorf("ExecuteCtx() error = %v, want %v", err, testErr)
	}
	if got := b.Stats().TotalExecuted; got != 2 {
		t.Errorf("TotalExecuted = %d, want 2", got)
	}
}

// occupy fills n slots of b and returns a release function.
func occupy(t *testing.T, b *Bulkhead, n int) func() {
	t.Helper()
	release := make(chan struct{})
	started := make(chan struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.ExecuteCtx(context.Background(), func(ctx context.Context) error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}
	return func() {
		close(release)
		wg.Wait()
	}
}

func TestBulkheadLimits(t *testing.T) {
	t.Run("rejects when queue is full", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  1,
			MaxQueue:       0,
			AcquireTimeout: config.Duration(time.Second),
		})
		done := occupy(t, b, 1)
		defer done()

		err := b.ExecuteCtx(context.Background(), func(ctx context.Context) error { return nil })
		if !errors.Is(err, ErrBulkheadFull) {
			t.Errorf("ExecuteCtx() error = %v, want ErrBulkheadFull", err)
		}
		if got := b.Stats().TotalRejected; got != 1 {
			t.Errorf("TotalRejected = %d, want 1", got)
		}
		if !IsBulkheadError(err) {
			t.Error("IsBulkheadError() = false")
		}
	})

	t.Run("times out in queue", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  1,
			MaxQueue:       1,
			AcquireTimeout: config.Duration(10 * time.Millisecond),
		})
		done := occupy(t, b, 1)
		defer done()

		err := b.ExecuteCtx(context.Background(), func(ctx context.Context) error { return nil })
		if !errors.Is(err, ErrBulkheadTimeout) {
			t.Errorf("ExecuteCtx() error = %v, want ErrBulkheadTimeout", err)
		}
	})

	t.Run("queued call runs when a slot frees", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  1,
			MaxQueue:       1,
			AcquireTimeout: config.Duration(5 * time.Second),
		})
		done := occupy(t, b, 1)

		result := make(chan error, 1)
		go func() {
			result <- b.ExecuteCtx(context.Background(), func(ctx context.Context) error { return nil })
		}()
		time.Sleep(10 * time.Millisecond)
		done()

		if err := <-result; err != nil {
			t.Errorf("queued ExecuteCtx() error = %v", err)
		}
	})

	t.Run("context cancellation while queued", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{
			MaxConcurrent:  1,
			MaxQueue:       1,
			AcquireTimeout: config.Duration(5 * time.Second),
		})
		done := occupy(t, b, 1)
		defer done()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := b.ExecuteCtx(ctx, func(ctx context.Context) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ExecuteCtx() error = %v, want context.Canceled", err)
		}
	})

	t.Run("stats while busy", func(t *testing.T) {
		b := NewBulkhead(config.BulkheadConfig{MaxConcurrent: 3})
		done := occupy(t, b, 2)
		stats := b.Stats()
		done()

		if stats.Active != 2 || stats.Available != 1 {
			t.Errorf("Stats() = %+v, want 2 active and 1 available", stats)
		}
	})
}

func TestDisabledBulkhead(t *testing.T) {
	b := NewDisabledBulkhead()
	calls := 0
	for i := 0; i < 5; i++ {
		_ = b.ExecuteCtx(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
}
