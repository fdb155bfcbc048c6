package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KnownKinds(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name string
		kind string
		want Tier
	}{
		{"investigate is safe", "investigate-resource", TierSafe},
		{"clear cache is low", "clear-cache", TierLow},
		{"restart is medium", "restart-component", TierMedium},
		{"rollback is high", "rollback-deployment", TierHigh},
		{"failover is critical", "failover-database", TierCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Classify(Input{Kind: tt.kind, Target: "worker-1"}, History{})
			assert.Equal(t, tt.want, a.Tier)
			assert.NotEmpty(t, a.Rationale)
		})
	}
}

func TestClassify_UnknownKindIsConservative(t *testing.T) {
	c := NewClassifier(nil)

	a := c.Classify(Input{Kind: "repartition-topic", Target: "kafka-0"}, History{})
	assert.Equal(t, TierHigh, a.Tier)
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(nil)
	in := Input{Kind: "restart-component", Target: "worker-3"}
	hist := History{SuccessRate: 0.8, Samples: 12}

	first := c.Classify(in, hist)
	second := c.Classify(in, hist)

	assert.Equal(t, first, second)
}

func TestClassify_ExplicitFactorsOverrideTable(t *testing.T) {
	c := NewClassifier(nil)

	a := c.Classify(Input{
		Kind:    "restart-component",
		Target:  "worker-3",
		Factors: &FactorScores{SystemImpact: 0.1},
	}, History{})

	assert.Equal(t, TierSafe, a.Tier)
}

func TestClassify_HistoryLowersRisk(t *testing.T) {
	c := NewClassifier(nil)
	in := Input{Kind: "restart-component", Target: "worker-3"}

	base := c.Classify(in, History{})
	good := c.Classify(in, History{SuccessRate: 1.0, Samples: 20})

	require.Less(t, good.Score, base.Score)
	assert.InDelta(t, -0.15, good.HistoryAdjustment, 1e-9)
	// A perfect history drops restart from MEDIUM to LOW.
	assert.Equal(t, TierLow, good.Tier)
}

func TestClassify_HistoryRaisesRisk(t *testing.T) {
	c := NewClassifier(nil)
	in := Input{Kind: "clear-cache", Target: "cache-1"}

	bad := c.Classify(in, History{SuccessRate: 0.0, Samples: 10})

	assert.InDelta(t, 0.15, bad.HistoryAdjustment, 1e-9)
	assert.Equal(t, TierLow, bad.Tier)
}

func TestClassify_HistoryIgnoredBelowMinSamples(t *testing.T) {
	c := NewClassifier(nil)
	in := Input{Kind: "restart-component", Target: "worker-3"}

	a := c.Classify(in, History{SuccessRate: 1.0, Samples: 2})

	assert.Zero(t, a.HistoryAdjustment)
}

func TestClassify_Confidence(t *testing.T) {
	c := NewClassifier(nil)

	none := c.Classify(Input{Kind: "clear-cache"}, History{})
	some := c.Classify(Input{Kind: "clear-cache"}, History{SuccessRate: 0.5, Samples: 5})
	many := c.Classify(Input{Kind: "clear-cache"}, History{SuccessRate: 0.5, Samples: 100})

	assert.Zero(t, none.Confidence)
	assert.InDelta(t, 0.5, some.Confidence, 1e-9)
	assert.Greater(t, many.Confidence, 0.9)
}

func TestTierFor_Thresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0.0, TierSafe},
		{0.19, TierSafe},
		{0.2, TierLow},
		{0.39, TierLow},
		{0.4, TierMedium},
		{0.59, TierMedium},
		{0.6, TierHigh},
		{0.79, TierHigh},
		{0.8, TierCritical},
		{1.0, TierCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tierFor(tt.score), "score %.2f", tt.score)
	}
}
