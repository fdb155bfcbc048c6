// Package learning records remediation outcomes and aggregates them
// into the statistics the risk classifier reads as prior evidence.
//
// Outcomes are append-only LearningEvents: one per terminal action
// record, carrying the action kind, the issue type it addressed,
// success or failure, the resolution duration, and an optional 1-5
// operator satisfaction rating attached after the fact.
//
// Ingest is best-effort by design: a storage failure must never block
// or roll back the action record's terminal state. Failed writes are
// logged and parked on a retry queue that a background loop drains on
// a paced schedule; a write that fails again is logged again, never
// dropped silently.
package learning
