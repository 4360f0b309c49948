package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/LavishGent/routewise/internal/types"
)

// Load loads configuration from a JSON or YAML file, picked by extension.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// LoadWithEnv loads configuration from a file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ttlEnv maps operations to the variables that override their TTL in seconds.
var ttlEnv = map[string]string{
	"get_news":             "TRADINGAGENTS_TTL_NEWS",
	"get_global_news":      "TRADINGAGENTS_TTL_GLOBAL_NEWS",
	"get_fundamentals":     "TRADINGAGENTS_TTL_FUNDAMENTALS",
	"get_balance_sheet":    "TRADINGAGENTS_TTL_BALANCE_SHEET",
	"get_cashflow":         "TRADINGAGENTS_TTL_CASHFLOW",
	"get_income_statement": "TRADINGAGENTS_TTL_INCOME_STATEMENT",
	"get_indicators":       "TRADINGAGENTS_TTL_INDICATORS",
	"get_stock_data":       "TRADINGAGENTS_TTL_STOCK_DATA",
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("ROUTEWISE_CACHE_PATH", "TRADINGAGENTS_CACHE_DB"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("ROUTEWISE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if cfg.Cache.TTL == nil {
		cfg.Cache.TTL = map[string]Duration{}
	}
	for op, name := range ttlEnv {
		if v := os.Getenv(name); v != "" {
			cfg.Cache.TTL[op] = Duration(parseDuration(v, cfg.Cache.TTL[op].Std()))
		}
	}

	if v := os.Getenv("ROUTEWISE_MEMORY_ENABLED"); v != "" {
		cfg.Cache.Memory.Enabled = parseBool(v)
	}
	if v := os.Getenv("ROUTEWISE_MEMORY_MAX_SIZE_MB"); v != "" {
		cfg.Cache.Memory.MaxSizeMB = parseInt(v, cfg.Cache.Memory.MaxSizeMB)
	}

	if v := os.Getenv("ROUTEWISE_REDIS_ENABLED"); v != "" {
		cfg.Cache.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("ROUTEWISE_REDIS_ADDRESS"); v != "" {
		cfg.Cache.Redis.Address = v
	}
	if v := os.Getenv("ROUTEWISE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = NewSecretString(v)
	}
	if v := os.Getenv("ROUTEWISE_REDIS_DB"); v != "" {
		cfg.Cache.Redis.DB = parseInt(v, cfg.Cache.Redis.DB)
	}
	if v := os.Getenv("ROUTEWISE_REDIS_KEY_PREFIX"); v != "" {
		cfg.Cache.Redis.KeyPrefix = v
	}
	if v := os.Getenv("ROUTEWISE_REDIS_POOL_SIZE"); v != "" {
		cfg.Cache.Redis.PoolSize = parseInt(v, cfg.Cache.Redis.PoolSize)
	}
	if v := os.Getenv("ROUTEWISE_REDIS_ENABLE_TLS"); v != "" {
		cfg.Cache.Redis.EnableTLS = parseBool(v)
	}
	if v := os.Getenv("ROUTEWISE_REDIS_FIRE_AND_FORGET"); v != "" {
		cfg.Cache.Redis.FireAndForget = parseBool(v)
	}

	if v := firstEnv("ROUTEWISE_VENDOR_PRIORITY_ORDER", "TRADINGAGENTS_VENDOR_PRIORITY_ORDER"); v != "" {
		cfg.Vendors.PriorityOrder = v
	}
	if cfg.Vendors.Costs == nil {
		cfg.Vendors.Costs = map[string]float64{}
	}
	for _, vendor := range []string{"alpha_vantage", "yfinance", "finnhub", "openai", "openrouter", "google"} {
		if v := os.Getenv("TRADINGAGENTS_COST_" + strings.ToUpper(vendor)); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				cfg.Vendors.Costs[vendor] = f
			}
		}
	}

	if v := os.Getenv("ROUTEWISE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := firstEnv("ROUTEWISE_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "TRADINGAGENTS_VENDOR_CB_THRESHOLD"); v != "" {
		cfg.CircuitBreaker.FailureThreshold = parseInt(v, cfg.CircuitBreaker.FailureThreshold)
	}
	if v := firstEnv("ROUTEWISE_CIRCUIT_BREAKER_COOLDOWN", "TRADINGAGENTS_VENDOR_CB_COOLDOWN"); v != "" {
		cfg.CircuitBreaker.Cooldown = Duration(parseDuration(v, cfg.CircuitBreaker.Cooldown.Std()))
	}

	if v := os.Getenv("ROUTEWISE_BULKHEAD_ENABLED"); v != "" {
		cfg.Bulkhead.Enabled = parseBool(v)
	}
	if v := os.Getenv("ROUTEWISE_BULKHEAD_MAX_CONCURRENT"); v != "" {
		cfg.Bulkhead.MaxConcurrent = parseInt(v, cfg.Bulkhead.MaxConcurrent)
	}

	if v := os.Getenv("ROUTEWISE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("ROUTEWISE_LLM_DEEP_THINK"); v != "" {
		cfg.LLM.DeepThink = ModelList(types.SplitList(v))
	}
	if v := os.Getenv("ROUTEWISE_LLM_QUICK_THINK"); v != "" {
		cfg.LLM.QuickThink = ModelList(types.SplitList(v))
	}
	applyProviderEnv(cfg.LLM.Providers)

	if v := firstEnv("ROUTEWISE_AUDIT_DIR", "TRADINGAGENTS_AUDIT_LOG_DIR"); v != "" {
		cfg.Audit.Dir = v
	}
	if v := firstEnv("ROUTEWISE_AUDIT_RETENTION_DAYS", "TRADINGAGENTS_AUDIT_RETENTION"); v != "" {
		cfg.Audit.RetentionDays = parseInt(v, cfg.Audit.RetentionDays)
	}
	if v := os.Getenv("ROUTEWISE_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}

	if v := firstEnv("ROUTEWISE_LOG_LEVEL", "TRADINGAGENTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ROUTEWISE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("ROUTEWISE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("ROUTEWISE_PROMETHEUS_ENABLED"); v != "" {
		cfg.Metrics.Prometheus.Enabled = parseBool(v)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}

	if v := os.Getenv("ROUTEWISE_DATADOG_ENABLED"); v != "" {
		if os.Getenv("DD_AGENT_HOST") == "" {
			cfg.Metrics.DataDog.Enabled = parseBool(v)
		}
	}
}

func applyProviderEnv(providers Providers) {
	set := func(name string, fn func(*ProviderConfig)) {
		pc, ok := providers[name]
		if !ok {
			return
		}
		fn(&pc)
		providers[name] = pc
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		set("openai", func(pc *ProviderConfig) { pc.BaseURL = v })
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		set("openrouter", func(pc *ProviderConfig) { pc.BaseURL = v })
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		set("ollama", func(pc *ProviderConfig) { pc.BaseURL = v })
	}
	if v := os.Getenv("OLLAMA_API_KEY_ENV"); v != "" {
		set("ollama", func(pc *ProviderConfig) { pc.APIKeyEnv = v })
	}
	if v := os.Getenv("TRADINGAGENTS_OPENROUTER_MAX_CALLS"); v != "" {
		set("openrouter", func(pc *ProviderConfig) { pc.MaxCallsPerMinute = parseInt(v, pc.MaxCallsPerMinute) })
	}
	if v := os.Getenv("TRADINGAGENTS_OPENROUTER_SELECTION_MODE"); v != "" {
		set("openrouter", func(pc *ProviderConfig) { pc.SelectionMode = strings.TrimSpace(v) })
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %s validation", fieldPath(fe.Namespace()), describeTag(fe))
		}
		return err
	}

	if c.Cache.Memory.Enabled {
		if c.Cache.Memory.MaxSizeMB <= 0 {
			return fmt.Errorf("cache.memory.maxSizeMB must be positive")
		}
		if c.Cache.Memory.Shards <= 0 || (c.Cache.Memory.Shards&(c.Cache.Memory.Shards-1)) != 0 {
			return fmt.Errorf("cache.memory.shards must be a positive power of 2")
		}
	}

	if c.Cache.Redis.Enabled {
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required when redis is enabled")
		}
		if c.Cache.Redis.PoolSize <= 0 {
			return fmt.Errorf("cache.redis.poolSize must be positive")
		}
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if c.CircuitBreaker.Cooldown <= 0 {
			return fmt.Errorf("circuitBreaker.cooldown must be positive")
		}
	}

	if c.RateLimitRetry.InitialBackoff < 0 || c.RateLimitRetry.MaxBackoff < c.RateLimitRetry.InitialBackoff {
		return fmt.Errorf("rateLimitRetry.maxBackoff must be at least initialBackoff")
	}

	if c.Bulkhead.Enabled {
		if c.Bulkhead.MaxConcurrent <= 0 {
			return fmt.Errorf("bulkhead.maxConcurrent must be positive")
		}
	}

	if c.Audit.Enabled && c.Audit.Dir == "" {
		return fmt.Errorf("audit.dir is required when audit is enabled")
	}

	return nil
}

func fieldPath(namespace string) string {
	// Drop the root struct name.
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}
