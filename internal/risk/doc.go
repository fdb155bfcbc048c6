// Package risk classifies proposed remediation actions into discrete
// risk tiers and maps tiers to approval dispositions.
//
// # Overview
//
// The classifier is a pure function: given an action kind, optional
// explicit factor scores, and a summary of historical outcomes, it
// produces a RiskAssessment with a tier, the contributing factor
// scores, and a confidence value. It performs no I/O and never blocks,
// so it is safe to call inline on the proposal path.
//
// # Scoring
//
// Five factors contribute to the composite score, each in [0, 1] where
// higher means riskier:
//
//	system impact  0.30
//	reversibility  0.20
//	downtime risk  0.25
//	data-loss risk 0.15
//	user impact    0.10
//
// Historical success for the same action kind shifts the composite
// score by a bounded amount (default ±0.15): an action kind that keeps
// succeeding is treated as slightly less risky, one that keeps failing
// as slightly more.
//
// # Tiers
//
// The composite score maps to a tier: SAFE below 0.2, LOW below 0.4,
// MEDIUM below 0.6, HIGH below 0.8, CRITICAL otherwise.
//
// # Policy
//
// Policy is a declarative tier-to-disposition table (auto-approve,
// require-approval, block) plus per-tier approval deadlines. It
// replaces scattered per-action-kind conditionals with a single table
// that can be reloaded at runtime.
package risk
