package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steadyFailures(target string, n int, cadence time.Duration) []FailureEvent {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := make([]FailureEvent, n)
	for i := range events {
		events[i] = FailureEvent{Target: target, Kind: "crash", At: base.Add(time.Duration(i) * cadence)}
	}
	return events
}

func trendSamples(target, metric string, n int, start, step float64) []MetricSample {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]MetricSample, n)
	for i := range samples {
		samples[i] = MetricSample{
			Target: target,
			Metric: metric,
			At:     base.Add(time.Duration(i) * time.Second),
			Value:  start + float64(i)*step,
		}
	}
	return samples
}

func TestDetect_RecurringFailure(t *testing.T) {
	d := NewDetector(nil)

	patterns := d.Detect(steadyFailures("worker-3", 4, 10*time.Minute), nil)

	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, TypeRecurringFailure, p.Type)
	assert.Equal(t, "worker-3", p.Target)
	assert.Equal(t, 0.9, p.Confidence)
	assert.Equal(t, 4, p.Occurrences)
	assert.Equal(t, 10*time.Minute, p.MeanInterval)
	assert.Equal(t, "restart-component", p.SuggestedAction)
}

func TestDetect_TooFewFailures(t *testing.T) {
	d := NewDetector(nil)

	patterns := d.Detect(steadyFailures("worker-3", 2, 10*time.Minute), nil)

	assert.Empty(t, patterns)
}

func TestDetect_IrregularCadenceNotFlagged(t *testing.T) {
	d := NewDetector(nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []FailureEvent{
		{Target: "worker-3", At: base},
		{Target: "worker-3", At: base.Add(1 * time.Minute)},
		{Target: "worker-3", At: base.Add(40 * time.Minute)},
		{Target: "worker-3", At: base.Add(42 * time.Minute)},
	}

	patterns := d.Detect(events, nil)
	assert.Empty(t, patterns)
}

func TestDetect_PerformanceDegradation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlopeThresholds["latency_ms"] = 0.5
	d := NewDetector(cfg)

	// Latency climbing 2ms per second.
	patterns := d.Detect(nil, trendSamples("db-primary", "latency_ms", 12, 100, 2))

	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, TypePerformanceDegradation, p.Type)
	assert.Equal(t, "db-primary", p.Target)
	assert.Equal(t, 0.8, p.Confidence)
	assert.Equal(t, "latency_ms", p.Metric)
	assert.InDelta(t, 2.0, p.Slope, 1e-6)
	assert.Equal(t, "investigate-resource", p.SuggestedAction)
}

func TestDetect_FlatTrendNotFlagged(t *testing.T) {
	d := NewDetector(nil)

	patterns := d.Detect(nil, trendSamples("db-primary", "latency_ms", 12, 100, 0))
	assert.Empty(t, patterns)
}

func TestDetect_TooFewSamples(t *testing.T) {
	d := NewDetector(nil)

	patterns := d.Detect(nil, trendSamples("db-primary", "latency_ms", 9, 100, 5))
	assert.Empty(t, patterns)
}

func TestDetect_OnePatternPerTargetAndType(t *testing.T) {
	d := NewDetector(nil)

	samples := append(
		trendSamples("db-primary", "latency_ms", 12, 100, 3),
		trendSamples("db-primary", "queue_depth", 12, 10, 5)...,
	)

	patterns := d.Detect(nil, samples)

	require.Len(t, patterns, 1)
	// The steeper normalized trend wins the slot.
	assert.Equal(t, "queue_depth", patterns[0].Metric)
}

func TestDetect_Idempotent(t *testing.T) {
	d := NewDetector(nil)
	failures := steadyFailures("worker-3", 5, time.Minute)
	samples := trendSamples("db-primary", "latency_ms", 15, 100, 4)

	first := d.Detect(failures, samples)
	second := d.Detect(failures, samples)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Key(), second[i].Key())
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
		assert.Equal(t, first[i].Occurrences, second[i].Occurrences)
	}
}

func TestMeanAndCV(t *testing.T) {
	mean, cv := meanAndCV([]float64{10, 10, 10})
	assert.Equal(t, 10.0, mean)
	assert.Zero(t, cv)

	mean, cv = meanAndCV([]float64{5, 15})
	assert.Equal(t, 10.0, mean)
	assert.InDelta(t, 0.5, cv, 1e-9)
}

func TestLinearSlope(t *testing.T) {
	slope := linearSlope(trendSamples("t", "m", 10, 0, 1))
	assert.InDelta(t, 1.0, slope, 1e-9)

	slope = linearSlope(trendSamples("t", "m", 10, 50, -2))
	assert.InDelta(t, -2.0, slope, 1e-9)
}
