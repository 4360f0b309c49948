package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/resilience"
	"github.com/LavishGent/routewise/internal/types"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"

	openRouterRateLimitKey = "openrouter"
)

// OpenAI-compatible endpoints used when a provider has no base URL.
var compatibleBaseURLs = map[string]string{
	ProviderAnthropic: "https://api.anthropic.com/v1/",
	ProviderGoogle:    "https://generativelanguage.googleapis.com/v1beta/openai/",
}

var rateLimitRetryDefaults = config.RetryConfig{
	MaxRetries:     2,
	InitialBackoff: config.Duration(750 * time.Millisecond),
	MaxBackoff:     config.Duration(8 * time.Second),
	Multiplier:     2,
}

// InitResult holds the model routers of both roles.
type InitResult struct {
	Provider string
	BaseURL  string
	Deep     *ModelRouter
	Quick    *ModelRouter
}

// ClientSpec describes the client a factory must build for one candidate.
type ClientSpec struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// ClientFactory builds the client for one candidate.
type ClientFactory func(ctx context.Context, spec ClientSpec) (Client, error)

// OpenAIClientFactory builds openai-go clients.
func OpenAIClientFactory(_ context.Context, spec ClientSpec) (Client, error) {
	return NewOpenAIClient(OpenAIConfig{
		Model:   spec.Model,
		APIKey:  spec.APIKey,
		BaseURL: spec.BaseURL,
	}), nil
}

type factoryOptions struct {
	clients ClientFactory
	limiter *resilience.RateLimiter
	retry   *resilience.RetryPolicy
	runtime *types.Options
	getenv  func(string) string
}

// FactoryOption customises BuildModelRouters.
type FactoryOption func(*factoryOptions)

func WithClientFactory(f ClientFactory) FactoryOption {
	return func(o *factoryOptions) { o.clients = f }
}

// WithRateLimiter shares limiter windows with other routers.
func WithRateLimiter(l *resilience.RateLimiter) FactoryOption {
	return func(o *factoryOptions) { o.limiter = l }
}

func WithRetryPolicy(rp *resilience.RetryPolicy) FactoryOption {
	return func(o *factoryOptions) { o.retry = rp }
}

// WithRuntime supplies the logger, metrics recorder, audit sink and clock.
func WithRuntime(opts *types.Options) FactoryOption {
	return func(o *factoryOptions) { o.runtime = opts }
}

// WithGetenv replaces os.Getenv for API key lookups.
func WithGetenv(fn func(string) string) FactoryOption {
	return func(o *factoryOptions) { o.getenv = fn }
}

// Plan is the provider selection and fallback order of both roles, computed
// without contacting any endpoint.
type Plan struct {
	Provider string
	BaseURL  string
	Config   config.ProviderConfig
	Deep     []Candidate
	Quick    []Candidate
}

// PlanModels resolves the provider and builds the candidates of both roles.
func PlanModels(cfg *config.LLMConfig, logger *slog.Logger) (*Plan, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	pc, ok := cfg.Providers[provider]
	if !ok {
		return nil, types.NewConfigError("llm.provider",
			fmt.Sprintf("unsupported or undefined LLM provider %q; add it under llm.providers", provider))
	}
	if len(cfg.DeepThink) == 0 || len(cfg.QuickThink) == 0 {
		return nil, types.NewConfigError("llm", "both deepThink and quickThink must be configured")
	}

	plan := &Plan{Provider: provider, BaseURL: pc.BaseURL, Config: pc}

	switch provider {
	case ProviderOpenRouter:
		deep, err := BuildCandidates(RoleDeepThink, cfg.DeepThink, &pc, logger)
		if err != nil {
			return nil, err
		}
		quick, err := BuildCandidates(RoleQuickThink, cfg.QuickThink, &pc, logger)
		if err != nil {
			return nil, err
		}
		plan.Deep, plan.Quick = deep, quick
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic, ProviderGoogle:
		plan.Deep = []Candidate{single(cfg.DeepThink.First())}
		plan.Quick = []Candidate{single(cfg.QuickThink.First())}
		if plan.BaseURL == "" {
			plan.BaseURL = compatibleBaseURLs[provider]
		}
	default:
		return nil, types.NewConfigError("llm.provider", fmt.Sprintf("unsupported LLM provider %q", provider))
	}
	return plan, nil
}

func single(model string) Candidate {
	return Candidate{Alias: model, Resolved: model, Score: 1}
}

// BuildModelRouters builds the deep and quick model routers for the
// configured provider.
func BuildModelRouters(ctx context.Context, cfg *config.Config, opts ...FactoryOption) (*InitResult, error) {
	o := factoryOptions{
		clients: OpenAIClientFactory,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runtime == nil {
		o.runtime = &types.Options{}
	}
	logger := types.SlogFrom(o.runtime.Logger).With("component", "llm")

	if o.retry == nil {
		o.retry = resilience.NewRetryPolicy(cfg.RateLimitRetry)
	}
	if o.limiter == nil {
		o.limiter = resilience.NewRateLimiter(o.runtime.Clock, nil)
	}
	if m := o.runtime.Metrics; m != nil {
		o.limiter.SetOnWait(func(key string, wait time.Duration) {
			logger.Debug("Rate limit reached, waiting", "group", key, "wait", wait)
			m.RecordRateLimitWait(key, wait)
		})
	}

	plan, err := PlanModels(&cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	apiKey, err := resolveAPIKey(plan.Provider, &plan.Config, cfg.LLM.APIKeys, o.getenv)
	if err != nil {
		return nil, err
	}

	base := ExecutorConfig{
		Provider: plan.Provider,
		Limiter:  o.limiter,
		Retry:    o.retry,
		Logger:   logger,
		Metrics:  o.runtime.Metrics,
		Audit:    o.runtime.Audit,
	}
	if plan.Provider == ProviderOpenRouter {
		base.RateLimitKey = openRouterRateLimitKey
		base.MaxCallsPerMinute = plan.Config.MaxCallsPerMinute
	}

	build := func(role string, candidates []Candidate) (*ModelRouter, error) {
		clients := make([]Client, len(candidates))
		for i, c := range candidates {
			client, err := o.clients(ctx, ClientSpec{
				Provider: plan.Provider,
				Model:    c.Resolved,
				APIKey:   apiKey,
				BaseURL:  plan.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("create client for %s model %s: %w", role, c.Resolved, err)
			}
			clients[i] = client
		}
		ec := base
		ec.Name = role
		ec.Candidates = candidates
		ec.Clients = clients
		return NewModelRouter(ec)
	}

	deep, err := build(RoleDeepThink, plan.Deep)
	if err != nil {
		return nil, err
	}
	quick, err := build(RoleQuickThink, plan.Quick)
	if err != nil {
		return nil, err
	}

	if plan.Provider == ProviderOpenRouter {
		logger.Info("Model fallback order", "role", RoleDeepThink, "order", FallbackOrder(plan.Deep))
		logger.Info("Model fallback order", "role", RoleQuickThink, "order", FallbackOrder(plan.Quick))
	}
	logCost(logger, RoleDeepThink, plan.Deep[0])
	logCost(logger, RoleQuickThink, plan.Quick[0])

	return &InitResult{
		Provider: plan.Provider,
		BaseURL:  plan.BaseURL,
		Deep:     deep,
		Quick:    quick,
	}, nil
}

// resolveAPIKey prefers the per-provider override, then the provider's own
// key, then its environment variable.
func resolveAPIKey(provider string, pc *config.ProviderConfig, overrides map[string]types.SecretString, getenv func(string) string) (string, error) {
	if key := overrides[provider].Value(); key != "" {
		return key, nil
	}
	key := pc.APIKey.Value()
	if key == "" && pc.APIKeyEnv != "" {
		key = getenv(pc.APIKeyEnv)
	}
	if key == "" && pc.RequiresAPIKey() {
		reason := fmt.Sprintf("API key missing for provider %q; provide one via config", provider)
		if pc.APIKeyEnv != "" {
			reason = fmt.Sprintf("API key missing for provider %q; set %s or provide one via config", provider, pc.APIKeyEnv)
		}
		return "", types.NewConfigError("llm.apiKeys", reason)
	}
	return key, nil
}

// FallbackOrder renders candidates as "model (tier=t, score=0.87) -> ...".
func FallbackOrder(candidates []Candidate) string {
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		tier := c.Tier
		if tier == "" {
			tier = "unknown"
		}
		parts[i] = fmt.Sprintf("%s (tier=%s, score=%.2f)", c.Resolved, tier, c.Score)
	}
	return strings.Join(parts, " -> ")
}

func logCost(logger *slog.Logger, role string, c Candidate) {
	if c.Cost == nil || (c.Cost.Prompt == 0 && c.Cost.Completion == 0) {
		return
	}
	logger.Info("Estimated model cost (USD per 1k tokens)",
		"role", role,
		"model", c.Resolved,
		"prompt", c.Cost.Prompt,
		"completion", c.Cost.Completion,
	)
}
