package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavishGent/routewise/internal/audit"
	"github.com/LavishGent/routewise/internal/metrics"
	"github.com/LavishGent/routewise/internal/resilience"
	"github.com/LavishGent/routewise/internal/types"
)

// ExecutorConfig wires an Executor. Candidates and Clients are parallel
// slices. An empty RateLimitKey or a zero MaxCallsPerMinute disables call
// pacing.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type ExecutorConfig struct {
	Name       string
	Provider   string
	Candidates []Candidate
	Clients    []Client

	Limiter           *resilience.RateLimiter
	RateLimitKey      string
	MaxCallsPerMinute int
	Retry             *resilience.RetryPolicy

	Logger  *slog.Logger
	Metrics types.MetricsRecorder
	Audit   types.AuditSink
}

// Executor runs a call against each candidate in order until one succeeds.
// A rate-limited candidate is retried with backoff before moving on.
type Executor struct {
	cfg    ExecutorConfig
	logger *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if len(cfg.Candidates) != len(cfg.Clients) {
		return nil, fmt.Errorf("executor %s: %d candidates but %d clients", cfg.Name, len(cfg.Candidates), len(cfg.Clients))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoOpTracker()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopSink{}
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetryPolicy(rateLimitRetryDefaults)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = resilience.NewRateLimiter(nil, nil)
	}
	if cfg.MaxCallsPerMinute < 0 {
		cfg.MaxCallsPerMinute = 0
	}
	return &Executor{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "llm-fallback", "role", cfg.Name),
	}, nil
}

// Run calls fn with each candidate's client until one returns nil. When every
// candidate fails the last error is returned unchanged. stage names the
// calling method in logs and audit records.
func (e *Executor) Run(ctx context.Context, stage string, fn func(ctx context.Context, c Client) error) error {
	if len(e.cfg.Candidates) == 0 {
		return &types.ConfigError{
			Field:  e.cfg.Name,
			Reason: "no models available for fallback",
			Err:    types.ErrNoCandidates,
		}
	}

	var lastErr error
	for idx, cand := range e.cfg.Candidates {
		client := e.cfg.Clients[idx]
		var next *Candidate
		if idx+1 < len(e.cfg.Candidates) {
			next = &e.cfg.Candidates[idx+1]
		}

		err := e.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
			if err := e.cfg.Limiter.Wait(ctx, e.cfg.RateLimitKey, e.cfg.MaxCallsPerMinute); err != nil {
				return err
			}
			if err := fn(ctx, client); err != nil {
				return err
			}
			if attempt > 1 || idx > 0 {
				e.logger.Info("Fallback succeeded", "model", cand.Resolved, "attempt", attempt)
			}
			return nil
		}, func(attempt int, err error, class types.ErrorClass, willRetry bool, wait time.Duration) {
			if ctx.Err() != nil {
				return
			}
			e.attemptFailed(cand, next, stage, attempt, err, class)
			if willRetry {
				e.logger.Info("Retrying model after backoff",
					"model", cand.Resolved,
					"attempt", attempt,
					"backoff", wait,
				)
			}
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (e *Executor) attemptFailed(cand Candidate, next *Candidate, stage string, attempt int, err error, class types.ErrorClass) {
	e.logger.Warn("Model attempt failed",
		"model", cand.Resolved,
		"stage", stage,
		"classification", class.String(),
		"error", err,
	)
	e.cfg.Metrics.RecordFallback(e.cfg.Name, cand.Resolved)

	rec := types.AuditRecord{
		"event":                 "llm_fallback",
		"provider":              e.cfg.Provider,
		"role":                  e.cfg.Name,
		"stage":                 stage,
		"attempt":               attempt,
		"failed_model_alias":    cand.Alias,
		"failed_model_resolved": cand.Resolved,
		"failed_model_tier":     nil,
		"error":                 err.Error(),
		"classification":        class.String(),
	}
	if cand.Tier != "" {
		rec["failed_model_tier"] = cand.Tier
	}
	if next != nil {
		rec["next_model_alias"] = next.Alias
		rec["next_model_resolved"] = next.Resolved
	}
	e.cfg.Audit.Record(rec)
}

// Name is the role this executor serves.
func (e *Executor) Name() string {
	return e.cfg.Name
}
