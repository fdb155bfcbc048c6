// Package engine is the remediation orchestration core: it accepts
// action proposals, classifies their risk, routes them through the
// approval gateway, dispatches approved work to the executor, and
// records terminal outcomes into the learning store.
//
// # State machine
//
// Records move through a monotonic lifecycle:
//
//	proposed → pending_approval → approved → executing → {completed | failed}
//	proposed → auto_approved → executing (no approval needed)
//	pending_approval → {rejected | expired}
//	executing → cancelled (only before the executor reports a result)
//
// completed, failed, rejected, expired, and cancelled are terminal; no
// transition ever leaves a terminal state.
//
// # Ownership
//
// The engine is the single writer of record state. All transitions run
// under the engine's write lock, so concurrent approve/reject/sweep
// calls on the same record resolve deterministically to exactly one
// winner; losers receive ErrAlreadyResolved. Callers only ever see
// copies of records.
//
// # Persistence
//
// Records are saved through a RecordStore on every transition. With
// the Badger-backed store records survive restart, but in-flight
// executions and their goroutines do not: on startup any record found
// in a non-terminal state is marked failed with an "interrupted by
// restart" reason. An in-memory store loses everything on restart;
// both limitations are inherent to the single-process reference build.
package engine
