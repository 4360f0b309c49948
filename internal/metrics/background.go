package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

const defaultPublishInterval = 10 * time.Second

// HealthReporter periodically sends the tracker's routing health to a
// publisher, plus a failure-ratio gauge per vendor.
type HealthReporter struct {
	tracker   *Tracker
	publisher types.Publisher
	enrich    func(*types.PublisherHealthMetrics)
	logger    *slog.Logger
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewHealthReporter creates a reporter. enrich, when set, fills the fields
// the tracker cannot know, such as cache entries and open circuits.
func NewHealthReporter(
	tracker *Tracker,
	publisher types.Publisher,
	interval time.Duration,
	enrich func(*types.PublisherHealthMetrics),
	logger *slog.Logger,
) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultPublishInterval
	}
	return &HealthReporter{
		tracker:   tracker,
		publisher: publisher,
		enrich:    enrich,
		interval:  interval,
		logger:    logger.With("component", "health-reporter"),
	}
}

// Start reports every interval until ctx is cancelled or Stop is called.
func (r *HealthReporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.Report()
				return
			case <-ticker.C:
				r.Report()
			}
		}
	}()
	r.logger.Debug("Health reporter started", "interval", r.interval)
}

// Stop ends the loop after a final report. Safe to call more than once and
// before Start.
func (r *HealthReporter) Stop() {
	r.once.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
		r.logger.Debug("Health reporter stopped")
	})
}

// Report publishes one health batch now.
func (r *HealthReporter) Report() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered from panic while reporting health", "panic", p)
		}
	}()

	m := r.tracker.HealthMetrics()
	if r.enrich != nil {
		r.enrich(m)
	}
	r.publisher.PublishHealthMetrics(m)

	per := r.tracker.Snapshot().PerBackend
	backends := make([]string, 0, len(per))
	for name := range per {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	for _, name := range backends {
		c := per[name]
		if c.Attempts == 0 {
			continue
		}
		r.publisher.Gauge("backend.failure_ratio", float64(c.Failures)/float64(c.Attempts), BackendTag(name))
	}
}
