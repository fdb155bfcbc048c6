package pattern

import (
	"context"
	"sync"
	"time"
)

// MemorySource is an in-process EventSource backed by a rolling
// window. The engine feeds it failed-execution events; external health
// feeds push metric samples through RecordMetric.
type MemorySource struct {
	window time.Duration

	mu       sync.Mutex
	failures []FailureEvent
	samples  []MetricSample
	now      func() time.Time
}

// NewMemorySource creates a source retaining the given window of
// history. A non-positive window defaults to 24 hours.
func NewMemorySource(window time.Duration) *MemorySource {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &MemorySource{window: window, now: time.Now}
}

// RecordFailure adds a failure observation.
func (s *MemorySource) RecordFailure(target, kind string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, FailureEvent{Target: target, Kind: kind, At: at})
	s.trimLocked()
}

// RecordMetric adds a metric observation.
func (s *MemorySource) RecordMetric(target, metric string, at time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, MetricSample{Target: target, Metric: metric, At: at, Value: value})
	s.trimLocked()
}

// FailureHistory returns the failure events in the window.
func (s *MemorySource) FailureHistory(ctx context.Context) ([]FailureEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimLocked()
	out := make([]FailureEvent, len(s.failures))
	copy(out, s.failures)
	return out, nil
}

// MetricHistory returns the metric samples in the window.
func (s *MemorySource) MetricHistory(ctx context.Context) ([]MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimLocked()
	out := make([]MetricSample, len(s.samples))
	copy(out, s.samples)
	return out, nil
}

// trimLocked drops observations older than the window. Caller holds mu.
func (s *MemorySource) trimLocked() {
	cutoff := s.now().Add(-s.window)

	kept := s.failures[:0]
	for _, f := range s.failures {
		if f.At.After(cutoff) {
			kept = append(kept, f)
		}
	}
	s.failures = kept

	keptSamples := s.samples[:0]
	for _, m := range s.samples {
		if m.At.After(cutoff) {
			keptSamples = append(keptSamples, m)
		}
	}
	s.samples = keptSamples
}
