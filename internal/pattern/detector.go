package pattern

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Fixed rule confidences.
const (
	recurringFailureConfidence       = 0.9
	performanceDegradationConfidence = 0.8
)

// Config configures the detection rules.
type Config struct {
	// MinFailures is the minimum failure count for the recurring
	// failure rule (default: 3).
	MinFailures int

	// MaxIntervalCV is the upper bound on the coefficient of variation
	// of inter-failure intervals (default: 0.2). Lower means failures
	// must recur at a steadier cadence.
	MaxIntervalCV float64

	// MinTrendSamples is the minimum sample count for the degradation
	// rule (default: 10).
	MinTrendSamples int

	// SlopeThresholds maps metric name to the slope (units per second)
	// above which a trend is flagged. Metrics without an entry use
	// DefaultSlopeThreshold.
	SlopeThresholds map[string]float64

	// DefaultSlopeThreshold applies to metrics with no explicit
	// threshold (default: 1.0).
	DefaultSlopeThreshold float64

	// SuggestedActions maps pattern type to the remediation action
	// kind the pattern recommends.
	SuggestedActions map[Type]string
}

// DefaultConfig returns detection defaults.
func DefaultConfig() *Config {
	return &Config{
		MinFailures:           3,
		MaxIntervalCV:         0.2,
		MinTrendSamples:       10,
		SlopeThresholds:       map[string]float64{},
		DefaultSlopeThreshold: 1.0,
		SuggestedActions: map[Type]string{
			TypeRecurringFailure:       "restart-component",
			TypePerformanceDegradation: "investigate-resource",
		},
	}
}

// Detector runs the detection rules over history snapshots. Detection
// is deterministic apart from the generated pattern IDs and timestamps.
type Detector struct {
	cfg *Config

	// now is swappable for tests.
	now func() time.Time
}

// NewDetector creates a detector. A nil config uses defaults.
func NewDetector(cfg *Config) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// Detect analyzes a history snapshot and returns at most one pattern
// per (target, type). The input slices are not mutated.
func (d *Detector) Detect(failures []FailureEvent, samples []MetricSample) []*Pattern {
	var patterns []*Pattern
	patterns = append(patterns, d.detectRecurringFailures(failures)...)
	patterns = append(patterns, d.detectDegradations(samples)...)
	return patterns
}

// detectRecurringFailures applies the cadence rule per target.
func (d *Detector) detectRecurringFailures(failures []FailureEvent) []*Pattern {
	byTarget := make(map[string][]FailureEvent)
	for _, f := range failures {
		byTarget[f.Target] = append(byTarget[f.Target], f)
	}

	targets := make([]string, 0, len(byTarget))
	for t := range byTarget {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var patterns []*Pattern
	for _, target := range targets {
		events := byTarget[target]
		if len(events) < d.cfg.MinFailures {
			continue
		}

		sort.Slice(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

		intervals := make([]float64, 0, len(events)-1)
		for i := 1; i < len(events); i++ {
			intervals = append(intervals, events[i].At.Sub(events[i-1].At).Seconds())
		}

		mean, cv := meanAndCV(intervals)
		if mean <= 0 || cv >= d.cfg.MaxIntervalCV {
			continue
		}

		patterns = append(patterns, &Pattern{
			ID:              uuid.New().String(),
			Type:            TypeRecurringFailure,
			Target:          target,
			Confidence:      recurringFailureConfidence,
			FirstSeen:       events[0].At,
			LastSeen:        events[len(events)-1].At,
			Occurrences:     len(events),
			SuggestedAction: d.cfg.SuggestedActions[TypeRecurringFailure],
			MeanInterval:    time.Duration(mean * float64(time.Second)),
			DetectedAt:      d.now(),
		})
	}
	return patterns
}

// detectDegradations applies the linear trend rule per (target, metric).
func (d *Detector) detectDegradations(samples []MetricSample) []*Pattern {
	type seriesKey struct{ target, metric string }
	byKey := make(map[seriesKey][]MetricSample)
	for _, s := range samples {
		k := seriesKey{s.Target, s.Metric}
		byKey[k] = append(byKey[k], s)
	}

	keys := make([]seriesKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].target != keys[j].target {
			return keys[i].target < keys[j].target
		}
		return keys[i].metric < keys[j].metric
	})

	// Best pattern per target: a target degrading on multiple metrics
	// still yields one pattern, keyed by (target, type). The steepest
	// normalized slope wins.
	best := make(map[string]*Pattern)

	for _, k := range keys {
		series := byKey[k]
		if len(series) < d.cfg.MinTrendSamples {
			continue
		}

		sort.Slice(series, func(i, j int) bool { return series[i].At.Before(series[j].At) })

		slope := linearSlope(series)
		threshold := d.cfg.DefaultSlopeThreshold
		if t, ok := d.cfg.SlopeThresholds[k.metric]; ok {
			threshold = t
		}
		if threshold <= 0 || slope <= threshold {
			continue
		}

		p := &Pattern{
			ID:              uuid.New().String(),
			Type:            TypePerformanceDegradation,
			Target:          k.target,
			Confidence:      performanceDegradationConfidence,
			FirstSeen:       series[0].At,
			LastSeen:        series[len(series)-1].At,
			Occurrences:     len(series),
			SuggestedAction: d.cfg.SuggestedActions[TypePerformanceDegradation],
			Metric:          k.metric,
			Slope:           slope,
			DetectedAt:      d.now(),
		}

		if existing, ok := best[k.target]; !ok || p.Slope/threshold > existing.Slope/thresholdFor(d.cfg, existing.Metric) {
			best[k.target] = p
		}
	}

	targets := make([]string, 0, len(best))
	for t := range best {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	patterns := make([]*Pattern, 0, len(best))
	for _, t := range targets {
		patterns = append(patterns, best[t])
	}
	return patterns
}

func thresholdFor(cfg *Config, metric string) float64 {
	if t, ok := cfg.SlopeThresholds[metric]; ok {
		return t
	}
	return cfg.DefaultSlopeThreshold
}

// meanAndCV returns the mean and coefficient of variation of values.
func meanAndCV(values []float64) (mean, cv float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0, 0
	}

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance) / mean
}

// linearSlope fits a least-squares line over (seconds since first
// sample, value) and returns its slope in value units per second.
func linearSlope(series []MetricSample) float64 {
	n := float64(len(series))
	t0 := series[0].At

	var sumX, sumY, sumXY, sumXX float64
	for _, s := range series {
		x := s.At.Sub(t0).Seconds()
		sumX += x
		sumY += s.Value
		sumXY += x * s.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
