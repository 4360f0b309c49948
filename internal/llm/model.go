package llm

import (
	"context"
	"fmt"
	"slices"
)

// ModelRouter is the chat model handed to callers for one role. Every call
// goes through the role's fallback executor.
type ModelRouter struct {
	exec *Executor
}

// NewModelRouter builds an executor from cfg and wraps it.
func NewModelRouter(cfg ExecutorConfig) (*ModelRouter, error) {
	exec, err := NewExecutor(cfg)
	if err != nil {
		return nil, err
	}
	return &ModelRouter{exec: exec}, nil
}

// Invoke sends one conversation.
func (m *ModelRouter) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	var resp *Response
	err := m.exec.Run(ctx, "invoke", func(ctx context.Context, c Client) error {
		r, err := c.Invoke(ctx, messages)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Batch sends several conversations to the same model. A failure of any
// conversation moves the whole batch to the next candidate.
func (m *ModelRouter) Batch(ctx context.Context, conversations [][]Message) ([]*Response, error) {
	var out []*Response
	err := m.exec.Run(ctx, "batch", func(ctx context.Context, c Client) error {
		r, err := c.Batch(ctx, conversations)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

type bindOptions struct {
	rateLimitKey *string
	maxCalls     *int
}

// BindOption adjusts the pacing of a tool-bound router.
type BindOption func(*bindOptions)

// WithRateLimitKey paces the bound router under key instead of the parent's.
func WithRateLimitKey(key string) BindOption {
	return func(o *bindOptions) { o.rateLimitKey = &key }
}

// WithMaxCallsPerMinute overrides the parent's call limit.
func WithMaxCallsPerMinute(n int) BindOption {
	return func(o *bindOptions) { o.maxCalls = &n }
}

// BindTools returns a router named "<name>.tools" over the same candidates
// with every client bound to tools. Pacing is inherited unless overridden.
func (m *ModelRouter) BindTools(tools []Tool, opts ...BindOption) (*ModelRouter, error) {
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := m.exec.cfg
	cfg.Name = m.exec.cfg.Name + ".tools"
	cfg.Candidates = slices.Clone(m.exec.cfg.Candidates)
	cfg.Clients = make([]Client, len(m.exec.cfg.Clients))
	for i, c := range m.exec.cfg.Clients {
		cfg.Clients[i] = c.BindTools(tools)
	}
	if o.rateLimitKey != nil && *o.rateLimitKey != "" {
		cfg.RateLimitKey = *o.rateLimitKey
	}
	if o.maxCalls != nil {
		cfg.MaxCallsPerMinute = *o.maxCalls
	}

	bound, err := NewModelRouter(cfg)
	if err != nil {
		return nil, fmt.Errorf("bind tools for %s: %w", m.exec.cfg.Name, err)
	}
	return bound, nil
}

// Name is the role name, with a ".tools" suffix for bound routers.
func (m *ModelRouter) Name() string {
	return m.exec.Name()
}

// PrimaryModel is the resolved id of the first candidate.
func (m *ModelRouter) PrimaryModel() string {
	if len(m.exec.cfg.Candidates) == 0 {
		return ""
	}
	return m.exec.cfg.Candidates[0].Resolved
}

// Candidates returns the fallback order.
func (m *ModelRouter) Candidates() []Candidate {
	return slices.Clone(m.exec.cfg.Candidates)
}

// RateLimit returns the pacing key and per-minute limit.
func (m *ModelRouter) RateLimit() (key string, maxCallsPerMinute int) {
	return m.exec.cfg.RateLimitKey, m.exec.cfg.MaxCallsPerMinute
}
