// Package routewise is a resilient routing layer for financial-data vendors
// and LLM providers.
//
// A Service routes named operations (get_stock_data, get_news, ...) to the
// vendors registered for them, caching successful responses and falling back
// across vendors when one fails. Model routers built by the same Service try
// an ordered list of LLM candidates, retrying rate-limited calls with
// exponential backoff before moving to the next model.
//
// # Features
//
//   - Response cache: sqlite store with optional bigcache and Redis layers,
//     per-operation TTLs and stale fallback when every vendor fails
//   - Vendor fallback: configured primaries first, then every other vendor in
//     registration order
//   - Circuit breakers and bulkheads per vendor
//   - Model fallback with a shared per-minute call budget
//   - Audit trail: JSON lines for circuit trips and model fallbacks
//   - Metrics: in-process tracker with logging, DataDog and Prometheus publishers
//
// # Quick Start
//
//	svc, err := routewise.New(routewise.Config())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	err = svc.Register("get_stock_data", "yfinance", func(ctx context.Context, call routewise.Call) (string, error) {
//	    return fetchBars(ctx, call.Args...)
//	})
//
//	out, err := svc.Route(ctx, "get_stock_data", []any{"NVDA", "2024-01-01", "2024-02-01"}, nil)
//
// # Failure Classification
//
// Implementations report why they failed by returning a BackendError:
//
//	return "", routewise.RateLimitedError("alpha_vantage", err)
//
// Rate-limited errors stop the remaining implementations of that vendor and
// count toward its circuit breaker like any other failure. Plain errors are
// treated as transient.
//
// # Model Routers
//
//	models, err := svc.Models(ctx)
//	resp, err := models.Deep.Invoke(ctx, []routewise.Message{
//	    {Role: routewise.RoleUser, Content: "Summarise NVDA's last quarter"},
//	})
//
// The provider, model lists, aliases, capability tiers and call budget come
// from the llm section of the configuration.
//
// # Configuration
//
// Load configuration from a JSON or YAML file with environment overrides:
//
//	svc, err := routewise.NewFromFile("routewise.yaml")
//
// For tests, TestConfig returns an in-memory configuration with audit and
// metrics publishing disabled.
//
// # Thread Safety
//
// A Service and the model routers it builds are safe for concurrent use.
package routewise
