package config

import "time"

// Operation categories used to resolve default data vendors.
const (
	CategoryCoreStock    = "core_stock_apis"
	CategoryIndicators   = "technical_indicators"
	CategoryFundamentals = "fundamental_data"
	CategoryNews         = "news_data"
)

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled: true,
			Path:    "cache/routewise.db",
			TTL:     DefaultTTLs(),
			Memory: MemoryConfig{
				Enabled:          true,
				MaxSizeMB:        64,
				LifeWindow:       Duration(24 * time.Hour),
				CleanupInterval:  Duration(time.Minute),
				Shards:           256,
				MaxEntrySize:     1024 * 1024, // 1MB
				HardMaxCacheSize: false,
			},
			Redis: RedisConfig{
				Enabled:             false,
				Address:             "localhost:6379",
				Password:            SecretString{},
				DB:                  0,
				KeyPrefix:           "routewise:",
				EntryTTL:            Duration(24 * time.Hour),
				PoolSize:            20,
				MinIdleConns:        2,
				DialTimeout:         Duration(5 * time.Second),
				ReadTimeout:         Duration(3 * time.Second),
				WriteTimeout:        Duration(3 * time.Second),
				PoolTimeout:         Duration(4 * time.Second),
				MaxPendingWrites:    500,
				HealthCheckInterval: Duration(5 * time.Second),
			},
		},
		Vendors: VendorsConfig{
			DataVendors: map[string]string{
				CategoryCoreStock:    "yfinance",
				CategoryIndicators:   "yfinance",
				CategoryFundamentals: "alpha_vantage",
				CategoryNews:         "alpha_vantage",
			},
			ToolVendors: map[string]string{},
			Costs: map[string]float64{
				"alpha_vantage": 0,
				"yfinance":      0,
				"finnhub":       0,
				"openai":        0,
				"openrouter":    0,
				"google":        0,
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 3,
			Cooldown:         Duration(300 * time.Second),
		},
		Bulkhead: BulkheadConfig{
			Enabled:        true,
			MaxConcurrent:  16,
			MaxQueue:       32,
			AcquireTimeout: Duration(5 * time.Second),
		},
		RateLimitRetry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: Duration(750 * time.Millisecond),
			MaxBackoff:     Duration(8 * time.Second),
			Multiplier:     2.0,
			Jitter:         false,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			DeepThink:  ModelList{"o4-mini"},
			QuickThink: ModelList{"gpt-4o-mini"},
			APIKeys:    map[string]SecretString{},
			Providers:  DefaultProviders(),
		},
		Audit: AuditConfig{
			Enabled:       true,
			Dir:           "audit_logs",
			FilePrefix:    "routing",
			RetentionDays: 90,
			MaxSizeMB:     100,
			BufferSize:    1000,
			Workers:       1,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: Duration(10 * time.Second),
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "routewise",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:   false,
				Namespace: "routewise",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultTTLs returns the per-operation freshness windows.
func DefaultTTLs() map[string]Duration {
	return map[string]Duration{
		"get_news":             Duration(time.Hour),
		"get_global_news":      Duration(time.Hour),
		"get_fundamentals":     Duration(24 * time.Hour),
		"get_balance_sheet":    Duration(24 * time.Hour),
		"get_cashflow":         Duration(24 * time.Hour),
		"get_income_statement": Duration(24 * time.Hour),
		"get_indicators":       Duration(15 * time.Minute),
		"get_stock_data":       Duration(15 * time.Minute),
	}
}

func boolPtr(v bool) *bool { return &v }

func weight(v float64) *float64 { return &v }

// DefaultProviders returns a fresh copy of the built-in provider settings.
func DefaultProviders() Providers {
	return Providers{
		"openai": {
			APIKeyEnv:     "OPENAI_API_KEY",
			BaseURL:       "https://api.openai.com/v1",
			RequireAPIKey: boolPtr(true),
		},
		"openrouter": defaultOpenRouter(),
		"ollama": {
			BaseURL:       "http://localhost:11434/v1",
			RequireAPIKey: boolPtr(false),
		},
		"anthropic": {
			APIKeyEnv:     "ANTHROPIC_API_KEY",
			RequireAPIKey: boolPtr(true),
		},
		"google": {
			APIKeyEnv:     "GOOGLE_API_KEY",
			RequireAPIKey: boolPtr(true),
		},
	}
}

func defaultOpenRouter() ProviderConfig {
	return ProviderConfig{
		APIKeyEnv:     "OPENROUTER_API_KEY",
		BaseURL:       "https://openrouter.ai/api/v1",
		RequireAPIKey: boolPtr(true),
		ModelAliases: map[string]string{
			"gpt-5-mini":       "openai/gpt-5-mini",
			"gpt-4o-mini":      "openai/gpt-4o-mini",
			"llama3-70b":       "meta-llama/llama-3.3-70b-instruct",
			"zAi-glm-4-5":      "z-ai/glm-4.5-air:free",
			"deepseek-r1":      "deepseek/deepseek-chat-v3-0324:free",
			"magistral-medium": "mistralai/magistral-medium-2506:thinking",
			"mistral-small":    "mistralai/mistral-small-3.2-24b-instruct:free",
			"grok-4-fast":      "x-ai/grok-4-fast",
			"minimax-free":     "minimax/minimax-m2:free",
		},
		CostEstimates: map[string]Cost{
			"openai/gpt-5-mini":                             {Prompt: 0.25, Completion: 2.00},
			"openai/gpt-4o-mini":                            {Prompt: 0.15, Completion: 0.60},
			"meta-llama/llama-3.3-70b-instruct":             {Prompt: 0.13, Completion: 0.38},
			"z-ai/glm-4.5-air:free":                         {},
			"mistralai/magistral-medium-2506:thinking":      {Prompt: 2.00, Completion: 5.00},
			"x-ai/grok-4-fast":                              {Prompt: 0.20, Completion: 0.50},
			"minimax/minimax-m2:free":                       {},
			"deepseek/deepseek-chat-v3-0324:free":           {},
			"mistralai/mistral-small-3.2-24b-instruct:free": {},
		},
		CapabilityTiers: map[string][]string{
			"finance_safe":   {"gpt-5-mini", "gpt-4o-mini", "magistral-medium"},
			"cost_saver":     {"gpt-4o-mini", "magistral-medium"},
			"research_heavy": {"llama3-70b", "grok-4-fast"},
			"free_trial":     {"zAi-glm-4-5", "minimax-free", "deepseek-r1", "mistral-small"},
		},
		PreferredCapabilities: map[string]string{
			"deep_think":  "finance_safe",
			"quick_think": "cost_saver",
		},
		BlockedModels:     []string{},
		EnableFreeModels:  true,
		MaxCallsPerMinute: 20,
		SelectionMode:     "balanced",
		ModelProfiles: map[string]ModelProfile{
			"openai/gpt-5-mini":                             {Context: 200000, Reliability: weight(0.9), CostWeight: weight(0.6)},
			"openai/gpt-4o-mini":                            {Context: 128000, Reliability: weight(0.95), CostWeight: weight(0.9)},
			"mistralai/magistral-medium-2506:thinking":      {Context: 32000, Reliability: weight(0.7), CostWeight: weight(0.4)},
			"meta-llama/llama-3.3-70b-instruct":             {Context: 8192, Reliability: weight(0.6), CostWeight: weight(0.3)},
			"x-ai/grok-4-fast":                              {Context: 32768, Reliability: weight(0.65), CostWeight: weight(0.35)},
			"z-ai/glm-4.5-air:free":                         {Context: 32000, Reliability: weight(0.7), CostWeight: weight(1.0)},
			"minimax/minimax-m2:free":                       {Context: 20000, Reliability: weight(0.7), CostWeight: weight(1.0)},
			"deepseek/deepseek-chat-v3-0324:free":           {Context: 24000, Reliability: weight(0.5), CostWeight: weight(1.0)},
			"mistralai/mistral-small-3.2-24b-instruct:free": {Context: 32000, Reliability: weight(0.45), CostWeight: weight(1.0)},
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests:
// in-memory sqlite, no redis, no audit file, no metrics publishing.
func ForTesting() *Config {
	cfg := DefaultConfig()
	cfg.Cache.Path = ""
	cfg.Cache.Memory = MemoryConfig{
		Enabled:         true,
		MaxSizeMB:       8,
		LifeWindow:      Duration(time.Hour),
		CleanupInterval: Duration(time.Second),
		Shards:          16,
		MaxEntrySize:    64 * 1024,
	}
	cfg.Cache.Redis.Enabled = false
	cfg.Cache.Redis.KeyPrefix = "test:"
	cfg.Cache.Redis.HealthCheckInterval = 0
	cfg.Bulkhead = BulkheadConfig{
		Enabled:        false,
		MaxConcurrent:  10,
		MaxQueue:       5,
		AcquireTimeout: Duration(50 * time.Millisecond),
	}
	cfg.RateLimitRetry.InitialBackoff = Duration(time.Millisecond)
	cfg.RateLimitRetry.MaxBackoff = Duration(10 * time.Millisecond)
	cfg.Audit.Enabled = false
	cfg.Audit.Dir = ""
	cfg.Metrics.Enabled = false
	cfg.Metrics.PublishInterval = Duration(time.Second)
	return cfg
}

// ForTestingWithRedis returns a test config with Redis enabled.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Address = addr
	return cfg
}
