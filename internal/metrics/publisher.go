package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/metrics/datadog"
	"github.com/LavishGent/routewise/internal/metrics/prom"
	"github.com/LavishGent/routewise/internal/types"
)

// NewPublisher builds the publishers enabled in cfg. With metrics disabled
// it returns a NoOpPublisher; with no backend enabled it logs metrics.
func NewPublisher(cfg *config.MetricsConfig, logger *slog.Logger) (types.Publisher, error) {
	if !cfg.Enabled {
		return NewNoOpPublisher(), nil
	}

	var pubs MultiPublisher
	if cfg.DataDog.Enabled {
		dd, err := datadog.NewPublisher(&cfg.DataDog, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, dd)
	}
	if cfg.Prometheus.Enabled {
		pubs = append(pubs, prom.NewPublisher(&cfg.Prometheus, logger))
	}

	switch len(pubs) {
	case 0:
		return NewLoggingPublisher(logger), nil
	case 1:
		return pubs[0], nil
	default:
		return pubs, nil
	}
}

// PrometheusHandler returns the /metrics handler of p when p is or contains
// a Prometheus publisher.
func PrometheusHandler(p types.Publisher) (http.Handler, bool) {
	switch v := p.(type) {
	case *prom.Publisher:
		return v.Handler(), true
	case MultiPublisher:
		for _, inner := range v {
			if h, ok := PrometheusHandler(inner); ok {
				return h, true
			}
		}
	}
	return nil, false
}

// MultiPublisher fans every call out to each publisher in order.
type MultiPublisher []types.Publisher

func (m MultiPublisher) Gauge(name string, value float64, tags ...string) {
	for _, p := range m {
		p.Gauge(name, value, tags...)
	}
}

func (m MultiPublisher) Incr(name string, tags ...string) {
	for _, p := range m {
		p.Incr(name, tags...)
	}
}

func (m MultiPublisher) Count(name string, value int64, tags ...string) {
	for _, p := range m {
		p.Count(name, value, tags...)
	}
}

func (m MultiPublisher) Histogram(name string, value float64, tags ...string) {
	for _, p := range m {
		p.Histogram(name, value, tags...)
	}
}

func (m MultiPublisher) Timing(name string, duration time.Duration, tags ...string) {
	for _, p := range m {
		p.Timing(name, duration, tags...)
	}
}

func (m MultiPublisher) Event(title, text, alertType string, tags ...string) {
	for _, p := range m {
		p.Event(title, text, alertType, tags...)
	}
}

func (m MultiPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics) {
	for _, p := range m {
		p.PublishHealthMetrics(metrics)
	}
}

// Close closes every publisher and joins their errors.
func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ types.Publisher = MultiPublisher(nil)
