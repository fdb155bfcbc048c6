// Package pattern analyzes historical event streams for recurring
// signals worth remediating.
//
// Two detectors are implemented:
//
//   - Recurring failure: groups failure events per target, computes the
//     intervals between consecutive failures, and flags a pattern when
//     at least three failures recur at a roughly constant cadence
//     (coefficient of variation of intervals below 0.2).
//
//   - Performance degradation: fits a least-squares linear trend to a
//     metric time series over the most recent samples and flags a
//     pattern when the slope exceeds the per-metric threshold.
//
// Detection is pure: the detector reads a snapshot of history and
// returns patterns without touching shared state. Published patterns
// are replaced wholesale per (target, type) key, so readers never need
// to lock individual fields. Detection runs on a scheduled cadence,
// never inline with proposal handling.
package pattern
