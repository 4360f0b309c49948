package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/routewise/internal/cache"
	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/llm"
	"github.com/LavishGent/routewise/internal/types"
)

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a == nil {
		a = &app{}
	}
	cmd := newRootCmd(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a YAML config with audit and metrics off and the cache
// in a temp dir. extra holds any other top-level sections.
func writeConfig(t *testing.T, extra string) (cfgPath, cachePath string) {
	t.Helper()
	dir := t.TempDir()
	cachePath = filepath.Join(dir, "cache.db")
	body := "audit:\n  enabled: false\n" +
		"metrics:\n  enabled: false\n" +
		"cache:\n  path: " + cachePath + "\n  redis:\n    enabled: false\n" +
		extra
	cfgPath = filepath.Join(dir, "routewise.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, cachePath
}

const ollamaLLM = `llm:
  provider: ollama
  deepThink:
    - qwen3:32b
  quickThink:
    - qwen3:8b
`

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "routewise dev"), out)
}

func TestConfigShow(t *testing.T) {
	cfgPath, _ := writeConfig(t, `llm:
  provider: openrouter
  apiKeys:
    openrouter: sk-or-very-secret
`)

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, nil, "config", "show", "--yaml", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "provider: openrouter")
		assert.Contains(t, out, "[REDACTED]")
		assert.NotContains(t, out, "sk-or-very-secret")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, nil, "config", "show", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, `"provider": "openrouter"`)
		assert.NotContains(t, out, "sk-or-very-secret")
	})
}

func TestConfigValidate(t *testing.T) {
	cfgPath, _ := writeConfig(t, ollamaLLM)
	out, err := execute(t, nil, "config", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "qwen3:32b")

	badPath, _ := writeConfig(t, "llm:\n  provider: bedrock\n")
	_, err = execute(t, nil, "config", "validate", "-c", badPath)
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestLogLevelFlag(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	_, err := execute(t, nil, "config", "validate", "-c", cfgPath, "--log-level", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
}

func TestModels(t *testing.T) {
	cfgPath, _ := writeConfig(t, `llm:
  provider: openrouter
  deepThink:
    - gpt-5-mini
  quickThink:
    - gpt-4o-mini
`)
	out, err := execute(t, nil, "models", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Provider: openrouter")
	assert.Contains(t, out, llm.RoleDeepThink)
	assert.Contains(t, out, llm.RoleQuickThink)
	assert.Contains(t, out, "gpt-5-mini")
	assert.Contains(t, out, "gpt-4o-mini")
}

func TestVendors(t *testing.T) {
	cfgPath, _ := writeConfig(t, `vendors:
  toolVendors:
    get_news: finnhub, google
  priorityOrder: yfinance,alpha_vantage
`)
	out, err := execute(t, nil, "vendors", "-c", cfgPath)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	var news, stock string
	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "get_news":
			news = l
		case "get_stock_data":
			stock = l
		}
	}
	assert.Contains(t, news, "[finnhub google] (override)")
	assert.Contains(t, stock, "[yfinance]")
	assert.Contains(t, stock, "15m0s")
	assert.Contains(t, out, "Fallback priority: [yfinance alpha_vantage]")
}

func TestCacheCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	mgr, err := cache.NewManager(cfg.Cache, &types.Options{})
	require.NoError(t, err)
	key := cache.MakeKey([]any{"NVDA", "2024-01-01", "2024-01-31"}, nil)
	require.NoError(t, mgr.Set(context.Background(), "get_stock_data", key, "Date,Close\n2024-01-02,481.68", "yfinance"))
	require.NoError(t, mgr.Close())

	t.Run("get", func(t *testing.T) {
		out, err := execute(t, nil, "cache", "get", "get_stock_data", "NVDA", "2024-01-01", "2024-01-31", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Vendor:    yfinance")
		assert.Contains(t, out, "Fresh:     yes")
		assert.Contains(t, out, "2024-01-02,481.68")
	})

	t.Run("get miss", func(t *testing.T) {
		_, err := execute(t, nil, "cache", "get", "get_stock_data", "AAPL", "-c", cfgPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no cached response")
	})

	t.Run("get unknown operation", func(t *testing.T) {
		_, err := execute(t, nil, "cache", "get", "get_weather", "-c", cfgPath)
		assert.ErrorIs(t, err, types.ErrUnknownOperation)
	})

	t.Run("stats", func(t *testing.T) {
		out, err := execute(t, nil, "cache", "stats", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Stored entries:  1")
		assert.Contains(t, out, "Redis:           disabled")
	})

	t.Run("clear", func(t *testing.T) {
		out, err := execute(t, nil, "cache", "clear", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Response cache cleared")

		out, err = execute(t, nil, "cache", "stats", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Stored entries:  0")
	})
}

type scriptedClient struct {
	model string
	tools []llm.Tool
}

func (c *scriptedClient) Model() string { return c.model }

func (c *scriptedClient) BindTools(tools []llm.Tool) llm.Client {
	return &scriptedClient{model: c.model, tools: tools}
}

func (c *scriptedClient) Invoke(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	if len(c.tools) > 0 {
		return &llm.Response{
			Model:     c.model,
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: c.tools[0].Name, Arguments: `{"args":["NVDA"]}`}},
		}, nil
	}
	last := messages[len(messages)-1]
	return &llm.Response{Model: c.model, Content: c.model + " says: " + last.Content}, nil
}

func (c *scriptedClient) Batch(ctx context.Context, conversations [][]llm.Message) ([]*llm.Response, error) {
	out := make([]*llm.Response, 0, len(conversations))
	for _, conv := range conversations {
		r, err := c.Invoke(ctx, conv)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func scriptedFactory(_ context.Context, spec llm.ClientSpec) (llm.Client, error) {
	return &scriptedClient{model: spec.Model}, nil
}

func TestChat(t *testing.T) {
	cfgPath, _ := writeConfig(t, ollamaLLM)

	t.Run("quick", func(t *testing.T) {
		out, err := execute(t, &app{clients: scriptedFactory}, "chat", "-c", cfgPath, "hello", "there")
		require.NoError(t, err)
		assert.Equal(t, "qwen3:8b says: hello there\n", out)
	})

	t.Run("deep", func(t *testing.T) {
		out, err := execute(t, &app{clients: scriptedFactory}, "chat", "--role", "deep", "-c", cfgPath, "hi")
		require.NoError(t, err)
		assert.Equal(t, "qwen3:32b says: hi\n", out)
	})

	t.Run("tools", func(t *testing.T) {
		out, err := execute(t, &app{clients: scriptedFactory}, "chat", "--tools", "-c", cfgPath, "price?")
		require.NoError(t, err)
		assert.Contains(t, out, "tool call: ")
		assert.Contains(t, out, `{"args":["NVDA"]}`)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := execute(t, &app{clients: scriptedFactory}, "chat", "--role", "medium", "-c", cfgPath, "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "medium")
	})
}

func TestCatalogTools(t *testing.T) {
	tools := catalogTools()
	require.NotEmpty(t, tools)
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.Parameters["type"])
	}
	assert.True(t, names["get_stock_data"])
	assert.True(t, names["get_news"])
}

func TestEnvFile(t *testing.T) {
	// Restore whatever was set once the test ends; godotenv only fills
	// variables that are absent.
	t.Setenv("ROUTEWISE_LLM_PROVIDER", "")
	require.NoError(t, os.Unsetenv("ROUTEWISE_LLM_PROVIDER"))

	cfgPath, _ := writeConfig(t, ollamaLLM)
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("ROUTEWISE_LLM_PROVIDER=openai\n"), 0o600))

	out, err := execute(t, nil, "config", "show", "--env-file", envPath, "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"provider": "openai"`)

	_, err = execute(t, nil, "config", "show", "--env-file", filepath.Join(t.TempDir(), "missing.env"), "-c", cfgPath)
	assert.Error(t, err)
}

func TestServeMetrics(t *testing.T) {
	a := &app{metricsAddr: "127.0.0.1:0", logger: newTestLogger()}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "routewise_backend_attempts_total 3\n")
	})

	addr, err := a.serveMetrics(h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.teardown() })

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "routewise_backend_attempts_total 3")

	require.NoError(t, a.teardown())
	assert.Nil(t, a.metricsSrv)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "vendor", "alpha_vantage")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"vendor":"alpha_vantage"`)

	_, err = newLogger(&buf, config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
