package metrics

import (
	"slices"
	"time"

	"github.com/LavishGent/routewise/internal/types"
)

// Timer is a helper for measuring operation latency.
type Timer struct {
	publisher types.Publisher
	name      string
	tags      []string
	start     time.Time
}

// NewTimer creates a new timer that will record to the publisher when stopped.
func NewTimer(publisher types.Publisher, name string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		name:      name,
		tags:      tags,
		start:     time.Now(),
	}
}

// Stop records the elapsed time as a timing metric and returns the duration.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	t.publisher.Timing(t.name, duration, t.tags...)
	return duration
}

// StopWithStatus records the elapsed time tagged with status.
func (t *Timer) StopWithStatus(err error) time.Duration {
	status := "success"
	if err != nil {
		status = "failure"
	}
	duration := time.Since(t.start)
	t.publisher.Timing(t.name, duration, append(slices.Clip(t.tags), StatusTag(status))...)
	return duration
}
