package pattern

import (
	"context"
	"time"
)

// Type identifies the kind of detected signal.
type Type string

const (
	// TypeRecurringFailure marks failures recurring at a steady cadence.
	TypeRecurringFailure Type = "recurring_failure"
	// TypePerformanceDegradation marks a worsening metric trend.
	TypePerformanceDegradation Type = "performance_degradation"
)

// Pattern is a detected recurring signal. Patterns are immutable; a
// newer analysis run supersedes the previous pattern for the same
// (target, type) key.
type Pattern struct {
	// ID is unique per published pattern instance.
	ID string `json:"id"`

	// Type is the detector that produced this pattern.
	Type Type `json:"type"`

	// Target is the affected component.
	Target string `json:"target"`

	// Confidence is fixed per detection rule (0.9 recurring failure,
	// 0.8 performance degradation).
	Confidence float64 `json:"confidence"`

	// FirstSeen and LastSeen bound the evidence window.
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Occurrences is the number of contributing events or samples.
	Occurrences int `json:"occurrences"`

	// SuggestedAction is the remediation action kind this pattern
	// recommends.
	SuggestedAction string `json:"suggested_action"`

	// Metric and Slope are set for performance-degradation patterns.
	Metric string  `json:"metric,omitempty"`
	Slope  float64 `json:"slope,omitempty"`

	// MeanInterval is set for recurring-failure patterns.
	MeanInterval time.Duration `json:"mean_interval,omitempty"`

	// DetectedAt is when the analysis run produced this pattern.
	DetectedAt time.Time `json:"detected_at"`
}

// Key identifies the supersession slot for a pattern.
func (p *Pattern) Key() string {
	return p.Target + "/" + string(p.Type)
}

// FailureEvent is one historical failure observation for a target.
type FailureEvent struct {
	Target string    `json:"target"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// MetricSample is one historical metric observation for a target.
type MetricSample struct {
	Target string    `json:"target"`
	Metric string    `json:"metric"`
	At     time.Time `json:"at"`
	Value  float64   `json:"value"`
}

// EventSource supplies history snapshots to the detector. The feed is
// treated as ordered but possibly lossy; the detector tolerates gaps.
type EventSource interface {
	// FailureHistory returns the failure events in the rolling window.
	FailureHistory(ctx context.Context) ([]FailureEvent, error)

	// MetricHistory returns the metric samples in the rolling window.
	MetricHistory(ctx context.Context) ([]MetricSample, error)
}
