package routewise_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/routewise/internal/audit"
	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/pkg/routewise"
)

func newService(t *testing.T, cfg *config.Config, opts ...routewise.Option) *routewise.Service {
	t.Helper()
	svc, err := routewise.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func counting(calls *atomic.Int32, out string, err error) routewise.Implementation {
	return func(ctx context.Context, call routewise.Call) (string, error) {
		calls.Add(1)
		return out, err
	}
}

func TestServiceRouteUsesCache(t *testing.T) {
	svc := newService(t, routewise.TestConfig())

	var calls atomic.Int32
	require.NoError(t, svc.Register("get_stock_data", "yfinance", counting(&calls, "date,close\n2024-01-02,481.68", nil)))

	ctx := context.Background()
	args := []any{"NVDA", "2024-01-01", "2024-01-31"}
	first, err := svc.Route(ctx, "get_stock_data", args, nil)
	require.NoError(t, err)
	second, err := svc.Route(ctx, "get_stock_data", args, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	snap := svc.Metrics()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.Attempts)

	require.NoError(t, svc.ClearCache(ctx))
	_, err = svc.Route(ctx, "get_stock_data", args, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServiceCircuitBreaker(t *testing.T) {
	cfg := routewise.TestConfig()
	cfg.Cache.TTL = map[string]config.Duration{}
	cfg.CircuitBreaker.FailureThreshold = 1
	cfg.CircuitBreaker.Cooldown = config.Duration(time.Hour)
	sink := &audit.MemorySink{}
	svc := newService(t, cfg, routewise.WithAudit(sink))

	var calls atomic.Int32
	require.NoError(t, svc.Register("get_news", "alpha_vantage", counting(&calls, "", errors.New("upstream 502"))))

	ctx := context.Background()
	_, err := svc.Route(ctx, "get_news", []any{"NVDA"}, nil)
	assert.True(t, routewise.IsAllBackendsFailed(err))

	_, err = svc.Route(ctx, "get_news", []any{"NVDA"}, nil)
	assert.True(t, routewise.IsAllBackendsFailed(err))
	assert.Equal(t, int32(1), calls.Load(), "open circuit skips the vendor")

	health := svc.Health(ctx)
	assert.Equal(t, routewise.HealthStatusDegraded, health.Status)
	assert.Equal(t, "open", health.Backends["alpha_vantage"].CircuitState)
	assert.Equal(t, []string{"vendor_failure", "circuit_open"}, sink.Events())

	svc.ResetState()
	_, _ = svc.Route(ctx, "get_news", []any{"NVDA"}, nil)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServiceWithoutResilience(t *testing.T) {
	cfg := routewise.TestConfig()
	cfg.Cache.TTL = map[string]config.Duration{}
	cfg.CircuitBreaker.FailureThreshold = 1
	svc := newService(t, cfg, routewise.WithoutResilience(), routewise.WithoutCache())

	var calls atomic.Int32
	require.NoError(t, svc.Register("get_news", "alpha_vantage", counting(&calls, "", errors.New("upstream 502"))))

	for i := 0; i < 3; i++ {
		_, _ = svc.Route(context.Background(), "get_news", []any{"NVDA"}, nil)
	}
	assert.Equal(t, int32(3), calls.Load())

	health := svc.Health(context.Background())
	assert.Equal(t, routewise.HealthStatusHealthy, health.Status)
	assert.False(t, health.Cache.Enabled)
}

func TestServiceHealthReportsCache(t *testing.T) {
	svc := newService(t, routewise.TestConfig())

	h := svc.Health(context.Background())
	assert.Equal(t, routewise.HealthStatusHealthy, h.Status)
	assert.True(t, h.Cache.Enabled)
	assert.True(t, h.Cache.StoreAvailable)
}

func TestServiceModels(t *testing.T) {
	cfg := routewise.TestConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.DeepThink = config.ModelList{"qwen3:32b"}
	cfg.LLM.QuickThink = config.ModelList{"qwen3:8b"}

	var built []routewise.ClientSpec
	factory := func(_ context.Context, spec routewise.ClientSpec) (routewise.Client, error) {
		built = append(built, spec)
		return echoClient{model: spec.Model}, nil
	}
	svc := newService(t, cfg, routewise.WithClientFactory(factory))

	models, err := svc.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "qwen3:32b", models.Deep.PrimaryModel())
	assert.Equal(t, "qwen3:8b", models.Quick.PrimaryModel())
	require.Len(t, built, 2)
	assert.Equal(t, "http://localhost:11434/v1", built[0].BaseURL)

	resp, err := models.Quick.Invoke(context.Background(), []routewise.Message{{Role: routewise.RoleUser, Content: "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b: ping", resp.Content)
}

func TestServiceModelsConfigError(t *testing.T) {
	cfg := routewise.TestConfig()
	cfg.LLM.Provider = "bedrock"
	svc := newService(t, cfg)

	_, err := svc.Models(context.Background())
	assert.True(t, routewise.IsConfigurationError(err))
	assert.ErrorIs(t, err, routewise.ErrConfiguration)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := routewise.TestConfig()
	cfg.Logging.Format = "xml"

	_, err := routewise.New(cfg)
	require.Error(t, err)
}

func TestServiceWithRegistry(t *testing.T) {
	reg := routewise.NewRegistry()
	var calls atomic.Int32
	require.NoError(t, reg.Register("get_global_news", "local", counting(&calls, "headlines", nil)))

	svc := newService(t, routewise.TestConfig(), routewise.WithRegistry(reg))
	assert.Same(t, reg, svc.Registry())

	got, err := svc.Route(context.Background(), "get_global_news", []any{"2024-05-01"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "headlines", got)

	svc.SetVendorAvailable("local", false)
	_, err = svc.Route(context.Background(), "get_global_news", []any{"2024-05-02"}, nil)
	assert.Error(t, err)
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc, err := routewise.New(routewise.TestConfig())
	require.NoError(t, err)

	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

type echoClient struct {
	model string
}

func (c echoClient) Model() string { return c.model }

func (c echoClient) BindTools([]routewise.Tool) routewise.Client { return c }

func (c echoClient) Invoke(_ context.Context, messages []routewise.Message) (*routewise.Response, error) {
	return &routewise.Response{Content: c.model + ": " + messages[len(messages)-1].Content, Model: c.model}, nil
}

func (c echoClient) Batch(ctx context.Context, conversations [][]routewise.Message) ([]*routewise.Response, error) {
	out := make([]*routewise.Response, 0, len(conversations))
	for _, conv := range conversations {
		r, _ := c.Invoke(ctx, conv)
		out = append(out, r)
	}
	return out, nil
}

type countingSerializer struct {
	marshals atomic.Int32
}

func (s *countingSerializer) Marshal(v any) ([]byte, error) {
	s.marshals.Add(1)
	return json.Marshal(v)
}

func (s *countingSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

func TestServiceClockExpiresCache(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()).UTC() }
	serializer := &countingSerializer{}

	svc := newService(t, routewise.TestConfig(),
		routewise.WithClock(clock),
		routewise.WithSerializer(serializer),
		routewise.WithoutRedis(),
	)
	var calls atomic.Int32
	require.NoError(t, svc.Register("get_news", "finnhub", counting(&calls, "headline", nil)))

	ctx := context.Background()
	args := []any{"NVDA", "2024-05-01", "2024-05-02"}
	for range 2 {
		_, err := svc.Route(ctx, "get_news", args, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Positive(t, serializer.marshals.Load())

	// get_news stays fresh for an hour.
	now.Add(int64(2 * time.Hour))
	_, err := svc.Route(ctx, "get_news", args, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
