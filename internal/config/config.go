// Package config provides configuration management for routewise.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LavishGent/routewise/internal/types"
)

// SecretString is a string type that redacts its value when marshaled.
type SecretString = types.SecretString

// Cost is an estimated price per 1k tokens.
type Cost = types.Cost

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for the routing layer.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Cache          CacheConfig          `json:"cache" yaml:"cache"`
	Vendors        VendorsConfig        `json:"vendors" yaml:"vendors"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker" yaml:"circuitBreaker"`
	Bulkhead       BulkheadConfig       `json:"bulkhead" yaml:"bulkhead"`
	RateLimitRetry RetryConfig          `json:"rateLimitRetry" yaml:"rateLimitRetry"`
	LLM            LLMConfig            `json:"llm" yaml:"llm"`
	Audit          AuditConfig          `json:"audit" yaml:"audit"`
	Metrics        MetricsConfig        `json:"metrics" yaml:"metrics"`
	Logging        LoggingConfig        `json:"logging" yaml:"logging"`
}

// CacheConfig configures the layered response cache.
type CacheConfig struct {
	// TTL maps an operation to its freshness window. Missing or zero means
	// the operation is not cached; negative means cached without expiry.
	TTL     map[string]Duration `json:"ttl" yaml:"ttl"`
	Path    string              `json:"path" yaml:"path"`
	Memory  MemoryConfig        `json:"memory" yaml:"memory"`
	Redis   RedisConfig         `json:"redis" yaml:"redis"`
	Enabled bool                `json:"enabled" yaml:"enabled"`
}

// TTLFor returns the configured TTL of operation.
func (c *CacheConfig) TTLFor(operation string) time.Duration {
	return c.TTL[operation].Std()
}

// MemoryConfig contains configuration for the in-process cache layer.
type MemoryConfig struct {
	LifeWindow       Duration `json:"lifeWindow" yaml:"lifeWindow"`
	CleanupInterval  Duration `json:"cleanupInterval" yaml:"cleanupInterval"`
	MaxSizeMB        int      `json:"maxSizeMB" yaml:"maxSizeMB" validate:"gte=0"`
	Shards           int      `json:"shards" yaml:"shards" validate:"gte=0"`
	MaxEntrySize     int      `json:"maxEntrySize" yaml:"maxEntrySize" validate:"gte=0"`
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	HardMaxCacheSize bool     `json:"hardMaxCacheSize" yaml:"hardMaxCacheSize"`
}

// RedisConfig contains configuration for the shared Redis layer.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	EntryTTL            Duration     `json:"entryTTL" yaml:"entryTTL"`
	DialTimeout         Duration     `json:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout         Duration     `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout        Duration     `json:"writeTimeout" yaml:"writeTimeout"`
	PoolTimeout         Duration     `json:"poolTimeout" yaml:"poolTimeout"`
	HealthCheckInterval Duration     `json:"healthCheckInterval" yaml:"healthCheckInterval"`
	Password            SecretString `json:"password" yaml:"password"`
	Address             string       `json:"address" yaml:"address"`
	KeyPrefix           string       `json:"keyPrefix" yaml:"keyPrefix"`
	DB                  int          `json:"db" yaml:"db" validate:"gte=0,lte=15"`
	PoolSize            int          `json:"poolSize" yaml:"poolSize" validate:"gte=0"`
	MinIdleConns        int          `json:"minIdleConns" yaml:"minIdleConns" validate:"gte=0"`
	MaxPendingWrites    int          `json:"maxPendingWrites" yaml:"maxPendingWrites" validate:"gte=0"`
	Enabled             bool         `json:"enabled" yaml:"enabled"`
	EnableTLS           bool         `json:"enableTLS" yaml:"enableTLS"`
	TLSSkipVerify       bool         `json:"tlsSkipVerify" yaml:"tlsSkipVerify"`
	// FireAndForget queues redis writes in the background. Queued writes
	// may be dropped when the queue is full.
	FireAndForget bool `json:"fireAndForget" yaml:"fireAndForget"`
}

// VendorsConfig selects and orders data vendors.
type VendorsConfig struct {
	// DataVendors maps a category to a comma separated vendor list.
	DataVendors map[string]string `json:"dataVendors" yaml:"dataVendors"`
	// ToolVendors maps an operation to a comma separated vendor list and
	// overrides its category.
	ToolVendors   map[string]string  `json:"toolVendors" yaml:"toolVendors"`
	PriorityOrder string             `json:"priorityOrder" yaml:"priorityOrder"`
	Costs         map[string]float64 `json:"costs" yaml:"costs"`
	Unavailable   []string           `json:"unavailable" yaml:"unavailable"`
}

// CircuitBreakerConfig contains configuration for per-backend circuit breakers.
type CircuitBreakerConfig struct {
	Cooldown         Duration `json:"cooldown" yaml:"cooldown"`
	FailureThreshold int      `json:"failureThreshold" yaml:"failureThreshold" validate:"gte=0"`
	Enabled          bool     `json:"enabled" yaml:"enabled"`
}

// BulkheadConfig contains configuration for the bulkhead pattern.
type BulkheadConfig struct {
	AcquireTimeout Duration `json:"acquireTimeout" yaml:"acquireTimeout"`
	MaxConcurrent  int      `json:"maxConcurrent" yaml:"maxConcurrent" validate:"gte=0"`
	MaxQueue       int      `json:"maxQueue" yaml:"maxQueue" validate:"gte=0"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
}

// RetryConfig configures the backoff applied to rate-limited model calls.
type RetryConfig struct {
	InitialBackoff Duration `json:"initialBackoff" yaml:"initialBackoff"`
	MaxBackoff     Duration `json:"maxBackoff" yaml:"maxBackoff"`
	Multiplier     float64  `json:"multiplier" yaml:"multiplier" validate:"gte=1"`
	MaxRetries     int      `json:"maxRetries" yaml:"maxRetries" validate:"gte=0,lte=10"`
	Jitter         bool     `json:"jitter" yaml:"jitter"`
}

// LLMConfig selects the model provider and the models used per role.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type LLMConfig struct {
	Provider   string                  `json:"provider" yaml:"provider"`
	DeepThink  ModelList               `json:"deepThink" yaml:"deepThink"`
	QuickThink ModelList               `json:"quickThink" yaml:"quickThink"`
	APIKeys    map[string]SecretString `json:"apiKeys" yaml:"apiKeys"`
	Providers  Providers               `json:"providers" yaml:"providers" validate:"dive"`
}

// Providers maps a provider name to its settings. Decoding merges into
// existing entries, so a file only needs the fields it overrides.
type Providers map[string]ProviderConfig

// ProviderConfig holds connection and model selection settings for one
// model provider.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type ProviderConfig struct {
	APIKeyEnv     string       `json:"apiKeyEnv" yaml:"apiKeyEnv"`
	APIKey        SecretString `json:"apiKey" yaml:"apiKey"`
	BaseURL       string       `json:"baseURL" yaml:"baseURL" validate:"omitempty,url"`
	RequireAPIKey *bool        `json:"requireAPIKey,omitempty" yaml:"requireAPIKey,omitempty"`

	ModelAliases          map[string]string       `json:"modelAliases,omitempty" yaml:"modelAliases,omitempty"`
	CostEstimates         map[string]Cost         `json:"costEstimates,omitempty" yaml:"costEstimates,omitempty"`
	CapabilityTiers       map[string][]string     `json:"capabilityTiers,omitempty" yaml:"capabilityTiers,omitempty"`
	PreferredCapabilities map[string]string       `json:"preferredCapabilities,omitempty" yaml:"preferredCapabilities,omitempty"`
	ModelProfiles         map[string]ModelProfile `json:"modelProfiles,omitempty" yaml:"modelProfiles,omitempty"`
	BlockedModels         []string                `json:"blockedModels,omitempty" yaml:"blockedModels,omitempty"`
	EnableFreeModels      bool                    `json:"enableFreeModels" yaml:"enableFreeModels"`
	MaxCallsPerMinute     int                     `json:"maxCallsPerMinute" yaml:"maxCallsPerMinute" validate:"gte=0"`
	SelectionMode         string                  `json:"selectionMode,omitempty" yaml:"selectionMode,omitempty" validate:"omitempty,oneof=balanced cost_balanced performance_first free_only"`
}

// RequiresAPIKey reports whether a key must be present. Unset means true.
func (p *ProviderConfig) RequiresAPIKey() bool {
	return p.RequireAPIKey == nil || *p.RequireAPIKey
}

// Clone returns a deep copy of p.
func (p ProviderConfig) Clone() ProviderConfig {
	out := p
	if p.RequireAPIKey != nil {
		v := *p.RequireAPIKey
		out.RequireAPIKey = &v
	}
	out.ModelAliases = maps.Clone(p.ModelAliases)
	out.CostEstimates = maps.Clone(p.CostEstimates)
	out.PreferredCapabilities = maps.Clone(p.PreferredCapabilities)
	out.ModelProfiles = maps.Clone(p.ModelProfiles)
	out.BlockedModels = slices.Clone(p.BlockedModels)
	if p.CapabilityTiers != nil {
		out.CapabilityTiers = make(map[string][]string, len(p.CapabilityTiers))
		for k, v := range p.CapabilityTiers {
			out.CapabilityTiers[k] = slices.Clone(v)
		}
	}
	return out
}

// ModelProfile carries the scoring hints of one resolved model id.
// Missing reliability and cost weight default to 0.5.
type ModelProfile struct {
	Context     int      `json:"context,omitempty" yaml:"context,omitempty"`
	Reliability *float64 `json:"reliability,omitempty" yaml:"reliability,omitempty"`
	CostWeight  *float64 `json:"costWeight,omitempty" yaml:"costWeight,omitempty"`
}

const defaultProfileWeight = 0.5

// ReliabilityOrDefault returns the reliability hint.
func (m ModelProfile) ReliabilityOrDefault() float64 {
	if m.Reliability == nil {
		return defaultProfileWeight
	}
	return *m.Reliability
}

// CostWeightOrDefault returns the cost weight hint.
func (m ModelProfile) CostWeightOrDefault() float64 {
	if m.CostWeight == nil {
		return defaultProfileWeight
	}
	return *m.CostWeight
}

// AuditConfig configures the append-only audit log.
type AuditConfig struct {
	Dir           string `json:"dir" yaml:"dir"`
	FilePrefix    string `json:"filePrefix" yaml:"filePrefix"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays" validate:"gte=0"`
	MaxSizeMB     int    `json:"maxSizeMB" yaml:"maxSizeMB" validate:"gte=0"`
	BufferSize    int    `json:"bufferSize" yaml:"bufferSize" validate:"gte=0"`
	Workers       int    `json:"workers" yaml:"workers" validate:"gte=0,lte=64"`
	Enabled       bool   `json:"enabled" yaml:"enabled"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval Duration         `json:"publishInterval" yaml:"publishInterval"`
	DataDog         DataDogConfig    `json:"datadog" yaml:"datadog"`
	Prometheus      PrometheusConfig `json:"prometheus" yaml:"prometheus"`
	Enabled         bool             `json:"enabled" yaml:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags" yaml:"tags"`
	AgentHost string   `json:"agentHost" yaml:"agentHost"`
	Prefix    string   `json:"prefix" yaml:"prefix"`
	Port      int      `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
}

// PrometheusConfig contains configuration for the Prometheus publisher.
type PrometheusConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// LoggingConfig configures the root slog logger built by the CLI.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// Duration is a time.Duration that decodes from "15m" style strings or from
// a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(v * float64(time.Second))
		return nil
	case string:
		parsed, err := parseDurationStrict(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration at line %d", node.Line)
	}
	parsed, err := parseDurationStrict(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseDurationStrict(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

// ModelList is one model name or an ordered list of names.
type ModelList []string

// First returns the first model, or "" when empty.
func (m ModelList) First() string {
	if len(m) == 0 {
		return ""
	}
	return m[0]
}

func (m ModelList) String() string {
	return strings.Join(m, ",")
}

func (m *ModelList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = modelListFromString(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("model list must be a string or list of strings: %w", err)
	}
	*m = list
	return nil
}

func (m *ModelList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = modelListFromString(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("model list must be a string or list of strings: %w", err)
	}
	*m = list
	return nil
}

func modelListFromString(s string) ModelList {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return ModelList{s}
}

// UnmarshalJSON merges each provider object into the existing entry.
func (p *Providers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if *p == nil {
		*p = make(Providers, len(raw))
	}
	for name, msg := range raw {
		pc := (*p)[name].Clone()
		if err := json.Unmarshal(msg, &pc); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		(*p)[name] = pc
	}
	return nil
}

// UnmarshalYAML merges each provider mapping into the existing entry.
func (p *Providers) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if *p == nil {
		*p = make(Providers, len(raw))
	}
	for name, n := range raw {
		pc := (*p)[name].Clone()
		if err := n.Decode(&pc); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		(*p)[name] = pc
	}
	return nil
}
