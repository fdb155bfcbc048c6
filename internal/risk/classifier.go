package risk

import (
	"fmt"
)

// Tier is the discrete risk classification driving approval policy.
type Tier string

const (
	// TierSafe actions carry negligible risk and always auto-approve.
	TierSafe Tier = "SAFE"
	// TierLow actions are routine and reversible.
	TierLow Tier = "LOW"
	// TierMedium actions have noticeable blast radius.
	TierMedium Tier = "MEDIUM"
	// TierHigh actions can cause user-visible outages.
	TierHigh Tier = "HIGH"
	// TierCritical actions risk data loss or prolonged downtime.
	TierCritical Tier = "CRITICAL"
)

// Factor weights for the composite score.
const (
	weightSystemImpact  = 0.30
	weightReversibility = 0.20
	weightDowntimeRisk  = 0.25
	weightDataLossRisk  = 0.15
	weightUserImpact    = 0.10
)

// Tier thresholds on the composite score.
const (
	thresholdSafe   = 0.2
	thresholdLow    = 0.4
	thresholdMedium = 0.6
	thresholdHigh   = 0.8
)

// FactorScores holds the five contributing factor scores, each in
// [0, 1] where higher means riskier.
type FactorScores struct {
	SystemImpact  float64 `json:"system_impact"`
	Reversibility float64 `json:"reversibility"`
	DowntimeRisk  float64 `json:"downtime_risk"`
	DataLossRisk  float64 `json:"data_loss_risk"`
	UserImpact    float64 `json:"user_impact"`
}

// weighted returns the composite weighted sum.
func (f FactorScores) weighted() float64 {
	return f.SystemImpact*weightSystemImpact +
		f.Reversibility*weightReversibility +
		f.DowntimeRisk*weightDowntimeRisk +
		f.DataLossRisk*weightDataLossRisk +
		f.UserImpact*weightUserImpact
}

// Assessment is the result of classifying a single proposal. It is
// computed fresh per proposal and embedded in the action record, never
// persisted standalone.
type Assessment struct {
	// Tier is the discrete classification.
	Tier Tier `json:"tier"`

	// Score is the composite weighted score after history adjustment.
	Score float64 `json:"score"`

	// Factors are the contributing factor scores used.
	Factors FactorScores `json:"factors"`

	// Confidence reflects how much historical evidence backs the
	// classification for this action kind (0.0 - 1.0).
	Confidence float64 `json:"confidence"`

	// HistoryAdjustment is the bounded shift applied from historical
	// success (negative lowers risk).
	HistoryAdjustment float64 `json:"history_adjustment"`

	// Rationale is a human-readable explanation of the tier.
	Rationale string `json:"rationale"`
}

// History summarizes prior outcomes for an action kind. The caller
// fetches it from the learning store so the classifier stays pure.
type History struct {
	// SuccessRate is successes / (successes + failures).
	SuccessRate float64

	// Samples is the number of recorded outcomes.
	Samples int
}

// Input describes a proposal to classify.
type Input struct {
	// Kind is the symbolic action kind, e.g. "restart-component".
	Kind string

	// Target is the component the action would run against.
	Target string

	// Factors, when non-nil, overrides the static per-kind factor
	// table. Detectors and operators may supply explicit scores when
	// they have better evidence than the defaults.
	Factors *FactorScores

	// PatternConfidence is the confidence of a matched pattern backing
	// this proposal, 0 when none matched.
	PatternConfidence float64
}

// Config configures the classifier.
type Config struct {
	// HistoryAdjustmentBound caps how far historical success can shift
	// the composite score in either direction (default: 0.15).
	HistoryAdjustmentBound float64

	// MinHistorySamples is how many recorded outcomes are required
	// before history adjusts the score (default: 5).
	MinHistorySamples int

	// ConfidencePrior smooths confidence for sparsely observed action
	// kinds: confidence = samples / (samples + prior) (default: 5).
	ConfidencePrior float64
}

// DefaultConfig returns sensible classifier defaults.
func DefaultConfig() *Config {
	return &Config{
		HistoryAdjustmentBound: 0.15,
		MinHistorySamples:      5,
		ConfidencePrior:        5,
	}
}

// Classifier maps proposals to risk assessments. It holds only static
// configuration and is safe for concurrent use.
type Classifier struct {
	cfg *Config
}

// NewClassifier creates a classifier. A nil config uses defaults.
func NewClassifier(cfg *Config) *Classifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg}
}

// baselineFactors is the static per-kind factor table. Unknown kinds
// fall back to a conservative default.
var baselineFactors = map[string]FactorScores{
	"investigate-resource": {SystemImpact: 0.10, Reversibility: 0.00, DowntimeRisk: 0.00, DataLossRisk: 0.00, UserImpact: 0.05},
	"clear-cache":          {SystemImpact: 0.30, Reversibility: 0.20, DowntimeRisk: 0.20, DataLossRisk: 0.20, UserImpact: 0.30},
	"restart-component":    {SystemImpact: 0.50, Reversibility: 0.30, DowntimeRisk: 0.60, DataLossRisk: 0.10, UserImpact: 0.40},
	"scale-component":      {SystemImpact: 0.40, Reversibility: 0.25, DowntimeRisk: 0.30, DataLossRisk: 0.05, UserImpact: 0.30},
	"rollback-deployment":  {SystemImpact: 0.70, Reversibility: 0.50, DowntimeRisk: 0.70, DataLossRisk: 0.50, UserImpact: 0.60},
	"failover-database":    {SystemImpact: 0.90, Reversibility: 0.70, DowntimeRisk: 0.90, DataLossRisk: 0.60, UserImpact: 0.80},
}

// conservativeDefault is applied to action kinds with no table entry.
var conservativeDefault = FactorScores{
	SystemImpact:  0.70,
	Reversibility: 0.60,
	DowntimeRisk:  0.60,
	DataLossRisk:  0.50,
	UserImpact:    0.50,
}

// Classify computes a fresh risk assessment for a proposal. It is
// deterministic: identical inputs always yield identical assessments.
func (c *Classifier) Classify(in Input, hist History) Assessment {
	factors := c.factorsFor(in)
	base := factors.weighted()

	adj := c.historyAdjustment(hist)
	score := clamp01(base + adj)

	tier := tierFor(score)

	return Assessment{
		Tier:              tier,
		Score:             score,
		Factors:           factors,
		Confidence:        c.confidence(hist),
		HistoryAdjustment: adj,
		Rationale:         rationale(in.Kind, tier, score, adj, hist),
	}
}

// factorsFor resolves the factor scores for an input.
func (c *Classifier) factorsFor(in Input) FactorScores {
	if in.Factors != nil {
		return *in.Factors
	}
	if f, ok := baselineFactors[in.Kind]; ok {
		return f
	}
	return conservativeDefault
}

// historyAdjustment maps historical success to a bounded score shift.
// A 100% success rate yields -bound, 0% yields +bound, 50% yields 0.
func (c *Classifier) historyAdjustment(hist History) float64 {
	if hist.Samples < c.cfg.MinHistorySamples {
		return 0
	}
	adj := (0.5 - hist.SuccessRate) * 2 * c.cfg.HistoryAdjustmentBound
	if adj > c.cfg.HistoryAdjustmentBound {
		adj = c.cfg.HistoryAdjustmentBound
	}
	if adj < -c.cfg.HistoryAdjustmentBound {
		adj = -c.cfg.HistoryAdjustmentBound
	}
	return adj
}

// confidence derives a 0-1 confidence from sample volume.
func (c *Classifier) confidence(hist History) float64 {
	if hist.Samples == 0 {
		return 0
	}
	n := float64(hist.Samples)
	return n / (n + c.cfg.ConfidencePrior)
}

func tierFor(score float64) Tier {
	switch {
	case score < thresholdSafe:
		return TierSafe
	case score < thresholdLow:
		return TierLow
	case score < thresholdMedium:
		return TierMedium
	case score < thresholdHigh:
		return TierHigh
	default:
		return TierCritical
	}
}

func rationale(kind string, tier Tier, score, adj float64, hist History) string {
	if hist.Samples == 0 {
		return fmt.Sprintf("%s scored %.2f (%s) with no recorded history", kind, score, tier)
	}
	return fmt.Sprintf("%s scored %.2f (%s); historical success %.0f%% over %d outcomes adjusted score by %+.2f",
		kind, score, tier, hist.SuccessRate*100, hist.Samples, adj)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
