package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("cache defaults", func(t *testing.T) {
		if !cfg.Cache.Enabled {
			t.Error("Cache.Enabled = false, want true")
		}
		tests := map[string]time.Duration{
			"get_news":             time.Hour,
			"get_global_news":      time.Hour,
			"get_fundamentals":     24 * time.Hour,
			"get_balance_sheet":    24 * time.Hour,
			"get_cashflow":         24 * time.Hour,
			"get_income_statement": 24 * time.Hour,
			"get_indicators":       15 * time.Minute,
			"get_stock_data":       15 * time.Minute,
		}
		for op, want := range tests {
			if got := cfg.Cache.TTLFor(op); got != want {
				t.Errorf("TTLFor(%s) = %v, want %v", op, got, want)
			}
		}
		if got := cfg.Cache.TTLFor("get_insider_sentiment"); got != 0 {
			t.Errorf("TTLFor(get_insider_sentiment) = %v, want 0", got)
		}
		if cfg.Cache.Redis.Enabled {
			t.Error("Cache.Redis.Enabled = true, want false")
		}
	})

	t.Run("vendor defaults", func(t *testing.T) {
		want := map[string]string{
			CategoryCoreStock:    "yfinance",
			CategoryIndicators:   "yfinance",
			CategoryFundamentals: "alpha_vantage",
			CategoryNews:         "alpha_vantage",
		}
		for cat, vendor := range want {
			if got := cfg.Vendors.DataVendors[cat]; got != vendor {
				t.Errorf("DataVendors[%s] = %q, want %q", cat, got, vendor)
			}
		}
		if cfg.Vendors.PriorityOrder != "" {
			t.Errorf("PriorityOrder = %q, want empty", cfg.Vendors.PriorityOrder)
		}
	})

	t.Run("circuit breaker defaults", func(t *testing.T) {
		if cfg.CircuitBreaker.FailureThreshold != 3 {
			t.Errorf("FailureThreshold = %d, want 3", cfg.CircuitBreaker.FailureThreshold)
		}
		if cfg.CircuitBreaker.Cooldown.Std() != 300*time.Second {
			t.Errorf("Cooldown = %v, want 5m", cfg.CircuitBreaker.Cooldown)
		}
	})

	t.Run("rate limit retry defaults", func(t *testing.T) {
		r := cfg.RateLimitRetry
		if r.MaxRetries != 2 || r.InitialBackoff.Std() != 750*time.Millisecond || r.MaxBackoff.Std() != 8*time.Second || r.Multiplier != 2 {
			t.Errorf("RateLimitRetry = %+v", r)
		}
	})

	t.Run("llm defaults", func(t *testing.T) {
		if cfg.LLM.Provider != "openai" {
			t.Errorf("Provider = %q, want openai", cfg.LLM.Provider)
		}
		if cfg.LLM.DeepThink.First() != "o4-mini" || cfg.LLM.QuickThink.First() != "gpt-4o-mini" {
			t.Errorf("models = %v / %v", cfg.LLM.DeepThink, cfg.LLM.QuickThink)
		}
		or := cfg.LLM.Providers["openrouter"]
		if or.MaxCallsPerMinute != 20 || or.SelectionMode != "balanced" || !or.EnableFreeModels {
			t.Errorf("openrouter = %+v", or)
		}
		if or.PreferredCapabilities["deep_think"] != "finance_safe" {
			t.Errorf("deep_think tier = %q", or.PreferredCapabilities["deep_think"])
		}
		ollama := cfg.LLM.Providers["ollama"]
		if ollama.RequiresAPIKey() {
			t.Error("ollama should not require an API key")
		}
		anthropic := cfg.LLM.Providers["anthropic"]
		if !anthropic.RequiresAPIKey() {
			t.Error("anthropic should require an API key")
		}
	})

	t.Run("audit defaults", func(t *testing.T) {
		if cfg.Audit.RetentionDays != 90 || cfg.Audit.FilePrefix != "routing" {
			t.Errorf("Audit = %+v", cfg.Audit)
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestDefaultProvidersAreIsolated(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	pc := a.LLM.Providers["openai"]
	pc.BaseURL = "https://example.com/v1"
	a.LLM.Providers["openai"] = pc
	a.LLM.Providers["openrouter"].ModelAliases["gpt-5-mini"] = "changed"

	if b.LLM.Providers["openai"].BaseURL == "https://example.com/v1" {
		t.Error("provider base URL leaked between configs")
	}
	if b.LLM.Providers["openrouter"].ModelAliases["gpt-5-mini"] != "openai/gpt-5-mini" {
		t.Error("model aliases leaked between configs")
	}
}

func TestForTesting(t *testing.T) {
	cfg := ForTesting()

	if cfg.Cache.Path != "" {
		t.Errorf("Cache.Path = %q, want in-memory", cfg.Cache.Path)
	}
	if cfg.Audit.Enabled || cfg.Metrics.Enabled || cfg.Cache.Redis.Enabled {
		t.Error("ForTesting should disable audit, metrics and redis")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	withRedis := ForTestingWithRedis("localhost:6390")
	if !withRedis.Cache.Redis.Enabled || withRedis.Cache.Redis.Address != "localhost:6390" {
		t.Errorf("Redis = %+v", withRedis.Cache.Redis)
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.LLM.Provider != "openai" {
			t.Errorf("Provider = %q", cfg.LLM.Provider)
		}
	})

	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.CircuitBreaker.FailureThreshold != 3 {
			t.Errorf("FailureThreshold = %d", cfg.CircuitBreaker.FailureThreshold)
		}
	})

	t.Run("json file merges providers", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		content := `{
			"cache": {"ttl": {"get_news": "30m", "get_insider_sentiment": -1}},
			"vendors": {"toolVendors": {"get_news": "openai,google"}, "priorityOrder": "google,openai"},
			"circuitBreaker": {"failureThreshold": 2, "cooldown": 60},
			"llm": {
				"provider": "openrouter",
				"deepThink": ["finance_safe", "llama3-70b"],
				"quickThink": "gpt-4o-mini",
				"providers": {"openrouter": {"maxCallsPerMinute": 5, "blockedModels": ["x-ai/grok-4-fast"]}}
			}
		}`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := cfg.Cache.TTLFor("get_news"); got != 30*time.Minute {
			t.Errorf("TTLFor(get_news) = %v, want 30m", got)
		}
		if got := cfg.Cache.TTLFor("get_insider_sentiment"); got != -time.Second {
			t.Errorf("TTLFor(get_insider_sentiment) = %v, want -1s", got)
		}
		if got := cfg.CircuitBreaker.Cooldown.Std(); got != time.Minute {
			t.Errorf("Cooldown = %v, want 1m", got)
		}
		if len(cfg.LLM.DeepThink) != 2 || cfg.LLM.QuickThink.First() != "gpt-4o-mini" {
			t.Errorf("models = %v / %v", cfg.LLM.DeepThink, cfg.LLM.QuickThink)
		}
		or := cfg.LLM.Providers["openrouter"]
		if or.MaxCallsPerMinute != 5 {
			t.Errorf("MaxCallsPerMinute = %d, want 5", or.MaxCallsPerMinute)
		}
		if len(or.BlockedModels) != 1 {
			t.Errorf("BlockedModels = %v", or.BlockedModels)
		}
		if or.ModelAliases["gpt-5-mini"] != "openai/gpt-5-mini" {
			t.Error("merge dropped the default aliases")
		}
		if or.BaseURL != "https://openrouter.ai/api/v1" {
			t.Errorf("BaseURL = %q", or.BaseURL)
		}
		if _, ok := cfg.LLM.Providers["ollama"]; !ok {
			t.Error("untouched providers must be kept")
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
cache:
  path: /tmp/routewise-test.db
  ttl:
    get_stock_data: 5m
llm:
  provider: ollama
  deepThink: llama3
  quickThink: [llama3, mistral]
  providers:
    ollama:
      baseURL: http://gpu-box:11434/v1
logging:
  level: debug
  format: json
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Cache.Path != "/tmp/routewise-test.db" {
			t.Errorf("Cache.Path = %q", cfg.Cache.Path)
		}
		if got := cfg.Cache.TTLFor("get_stock_data"); got != 5*time.Minute {
			t.Errorf("TTLFor(get_stock_data) = %v", got)
		}
		if got := cfg.Cache.TTLFor("get_news"); got != time.Hour {
			t.Errorf("TTLFor(get_news) = %v, want default 1h", got)
		}
		if cfg.LLM.DeepThink.First() != "llama3" || len(cfg.LLM.QuickThink) != 2 {
			t.Errorf("models = %v / %v", cfg.LLM.DeepThink, cfg.LLM.QuickThink)
		}
		ollama := cfg.LLM.Providers["ollama"]
		if ollama.BaseURL != "http://gpu-box:11434/v1" || ollama.RequiresAPIKey() {
			t.Errorf("ollama = %+v", ollama)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("Logging.Format = %q", cfg.Logging.Format)
		}
	})

	t.Run("invalid json fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load() = nil error, want parse error")
		}
	})

	t.Run("invalid duration fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte(`{"circuitBreaker": {"cooldown": "soon"}}`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load() = nil error, want duration error")
		}
	})
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("TRADINGAGENTS_CACHE_DB", "/data/cache.db")
	t.Setenv("TRADINGAGENTS_TTL_NEWS", "120")
	t.Setenv("TRADINGAGENTS_VENDOR_CB_THRESHOLD", "7")
	t.Setenv("TRADINGAGENTS_VENDOR_CB_COOLDOWN", "45")
	t.Setenv("TRADINGAGENTS_VENDOR_PRIORITY_ORDER", "yfinance,alpha_vantage")
	t.Setenv("TRADINGAGENTS_COST_ALPHA_VANTAGE", "0.25")
	t.Setenv("TRADINGAGENTS_AUDIT_LOG_DIR", "/var/log/routewise")
	t.Setenv("TRADINGAGENTS_AUDIT_RETENTION", "30")
	t.Setenv("TRADINGAGENTS_LOG_LEVEL", "DEBUG")
	t.Setenv("TRADINGAGENTS_OPENROUTER_MAX_CALLS", "11")
	t.Setenv("TRADINGAGENTS_OPENROUTER_SELECTION_MODE", "free_only")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1")
	t.Setenv("ROUTEWISE_LLM_DEEP_THINK", "finance_safe, llama3-70b")
	t.Setenv("ROUTEWISE_REDIS_PASSWORD", "hunter2")
	t.Setenv("DD_AGENT_HOST", "dd-agent")
	t.Setenv("DD_ENV", "staging")

	cfg, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Cache.Path != "/data/cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if got := cfg.Cache.TTLFor("get_news"); got != 2*time.Minute {
		t.Errorf("TTLFor(get_news) = %v, want 2m", got)
	}
	if cfg.CircuitBreaker.FailureThreshold != 7 || cfg.CircuitBreaker.Cooldown.Std() != 45*time.Second {
		t.Errorf("CircuitBreaker = %+v", cfg.CircuitBreaker)
	}
	if cfg.Vendors.PriorityOrder != "yfinance,alpha_vantage" {
		t.Errorf("PriorityOrder = %q", cfg.Vendors.PriorityOrder)
	}
	if cfg.Vendors.Costs["alpha_vantage"] != 0.25 {
		t.Errorf("Costs[alpha_vantage] = %v", cfg.Vendors.Costs["alpha_vantage"])
	}
	if cfg.Audit.Dir != "/var/log/routewise" || cfg.Audit.RetentionDays != 30 {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	or := cfg.LLM.Providers["openrouter"]
	if or.MaxCallsPerMinute != 11 || or.SelectionMode != "free_only" {
		t.Errorf("openrouter = %d/%s", or.MaxCallsPerMinute, or.SelectionMode)
	}
	if cfg.LLM.Providers["openai"].BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("openai BaseURL = %q", cfg.LLM.Providers["openai"].BaseURL)
	}
	if len(cfg.LLM.DeepThink) != 2 || cfg.LLM.DeepThink[1] != "llama3-70b" {
		t.Errorf("DeepThink = %v", cfg.LLM.DeepThink)
	}
	if cfg.Cache.Redis.Password.Value() != "hunter2" {
		t.Error("redis password not applied")
	}
	if !cfg.Metrics.DataDog.Enabled || cfg.Metrics.DataDog.AgentHost != "dd-agent" {
		t.Errorf("DataDog = %+v", cfg.Metrics.DataDog)
	}
	if len(cfg.Metrics.DataDog.Tags) != 1 || cfg.Metrics.DataDog.Tags[0] != "env:staging" {
		t.Errorf("DataDog.Tags = %v", cfg.Metrics.DataDog.Tags)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = -1 }, "failureThreshold"},
		{"zero threshold enabled", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "failureThreshold must be positive"},
		{"zero cooldown", func(c *Config) { c.CircuitBreaker.Cooldown = 0 }, "cooldown"},
		{"shards not power of two", func(c *Config) { c.Cache.Memory.Shards = 3 }, "shards"},
		{"redis without address", func(c *Config) {
			c.Cache.Redis.Enabled = true
			c.Cache.Redis.Address = ""
		}, "redis.address"},
		{"bad selection mode", func(c *Config) {
			pc := c.LLM.Providers["openrouter"]
			pc.SelectionMode = "fastest"
			c.LLM.Providers["openrouter"] = pc
		}, "selectionMode"},
		{"bad base url", func(c *Config) {
			pc := c.LLM.Providers["openai"]
			pc.BaseURL = "not a url"
			c.LLM.Providers["openai"] = pc
		}, "baseURL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"backoff inverted", func(c *Config) {
			c.RateLimitRetry.MaxBackoff = Duration(time.Millisecond)
		}, "maxBackoff"},
		{"audit without dir", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Dir = ""
		}, "audit.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}

	t.Run("disabled breaker skips threshold check", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CircuitBreaker.Enabled = false
		cfg.CircuitBreaker.FailureThreshold = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{`"15m"`, 15 * time.Minute},
		{`3600`, time.Hour},
		{`"86400"`, 24 * time.Hour},
		{`-1`, -time.Second},
		{`0.5`, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if d.Std() != tt.want {
				t.Errorf("Duration = %v, want %v", d.Std(), tt.want)
			}
		})
	}

	data, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Redis.Password = NewSecretString("redis-pass")
	cfg.LLM.APIKeys["openrouter"] = NewSecretString("sk-or-123")

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "redis-pass") || strings.Contains(string(data), "sk-or-123") {
		t.Error("json output leaked a secret")
	}

	ydata, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	if strings.Contains(string(ydata), "sk-or-123") {
		t.Error("yaml output leaked a secret")
	}
}
