package engine

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

// State is the lifecycle state of an action record.
type State string

const (
	// StateProposed is the initial state before policy routing.
	StateProposed State = "proposed"
	// StatePendingApproval awaits human sign-off.
	StatePendingApproval State = "pending_approval"
	// StateApproved has human sign-off and is about to execute.
	StateApproved State = "approved"
	// StateAutoApproved needed no human and is about to execute.
	StateAutoApproved State = "auto_approved"
	// StateExecuting is running against its target.
	StateExecuting State = "executing"
	// StateCompleted finished successfully. Terminal.
	StateCompleted State = "completed"
	// StateFailed finished with an error, timed out, or was blocked by
	// policy. Terminal.
	StateFailed State = "failed"
	// StateRejected was explicitly declined by a human. Terminal.
	StateRejected State = "rejected"
	// StateExpired passed its approval deadline. Terminal, tracked
	// separately from rejection so the two are never conflated.
	StateExpired State = "expired"
	// StateCancelled was stopped mid-execution. Terminal.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRejected, StateExpired, StateCancelled:
		return true
	}
	return false
}

// Evidence is the context that triggered a proposal.
type Evidence struct {
	// Metrics is a snapshot of the relevant metric values.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// PatternID references the detected pattern backing this
	// proposal, empty for operator-initiated actions.
	PatternID string `json:"pattern_id,omitempty"`

	// PatternType is the pattern's type, filled in from the pattern
	// registry when PatternID resolves.
	PatternType string `json:"pattern_type,omitempty"`

	// PatternConfidence is the referenced pattern's confidence.
	PatternConfidence float64 `json:"pattern_confidence,omitempty"`

	// Reasoning is free-text justification from the proposer.
	Reasoning string `json:"reasoning,omitempty"`

	// Factors optionally overrides the classifier's static per-kind
	// factor table when the proposer has better evidence.
	Factors *risk.FactorScores `json:"factors,omitempty"`
}

// Proposal is a candidate remediation. Immutable once submitted; the
// engine embeds it in the record it creates.
type Proposal struct {
	// Kind is the symbolic action kind, e.g. "restart-component".
	Kind string `json:"kind"`

	// Target is the component identifier the action runs against.
	Target string `json:"target"`

	// Title and Description are human-readable.
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Params is the free-form parameter map handed to the capability.
	Params map[string]any `json:"params,omitempty"`

	// EstimatedDuration informs the execution timeout.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	// RequestedBy identifies the proposer (detector or operator).
	RequestedBy string `json:"requested_by,omitempty"`

	// Evidence is what triggered the proposal.
	Evidence Evidence `json:"evidence"`
}

// ApprovalMeta captures the approval lifecycle of a record.
type ApprovalMeta struct {
	// Required is true when policy demanded a human decision.
	Required bool `json:"required"`

	// RequestedAt is when the record entered pending_approval.
	RequestedAt time.Time `json:"requested_at,omitempty"`

	// Deadline is when a pending approval expires.
	Deadline time.Time `json:"deadline,omitempty"`

	// ApproverID is who resolved it, empty until then.
	ApproverID string `json:"approver_id,omitempty"`

	// Reason is the approver's stated reason.
	Reason string `json:"reason,omitempty"`

	// ResolvedAt is when the decision (or expiry) landed.
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// ExecutionMeta captures execution timing.
type ExecutionMeta struct {
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
}

// Record is the authoritative lifecycle object for one proposal. The
// engine owns all mutation; every Record leaving the engine is a copy.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Proposal is the embedded, immutable proposal.
	Proposal Proposal `json:"proposal"`

	// Assessment is the risk assessment computed at submission.
	Assessment risk.Assessment `json:"assessment"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Reason is the human-readable explanation for the current state.
	// Always set for terminal states.
	Reason string `json:"reason,omitempty"`

	// Approval and Execution are the lifecycle metadata blocks.
	Approval  ApprovalMeta  `json:"approval"`
	Execution ExecutionMeta `json:"execution"`

	// Result is the capability's payload after a completed execution.
	Result map[string]any `json:"result,omitempty"`

	// Error is the captured failure description, empty on success.
	Error string `json:"error,omitempty"`

	// RollbackAvailable is true when the action kind declares a
	// rollback procedure.
	RollbackAvailable bool `json:"rollback_available"`

	// LearningRecorded tracks whether the terminal outcome has been
	// handed to the learning store, to keep it exactly-once.
	LearningRecorded bool `json:"learning_recorded,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a copy safe to hand outside the engine.
func (r *Record) clone() *Record {
	out := *r
	if r.Proposal.Params != nil {
		out.Proposal.Params = make(map[string]any, len(r.Proposal.Params))
		for k, v := range r.Proposal.Params {
			out.Proposal.Params[k] = v
		}
	}
	if r.Proposal.Evidence.Metrics != nil {
		out.Proposal.Evidence.Metrics = make(map[string]float64, len(r.Proposal.Evidence.Metrics))
		for k, v := range r.Proposal.Evidence.Metrics {
			out.Proposal.Evidence.Metrics[k] = v
		}
	}
	if r.Result != nil {
		out.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			out.Result[k] = v
		}
	}
	return &out
}

// RecordStore persists records across restarts. Save is called on
// every transition; Load once at startup.
type RecordStore interface {
	// Save upserts one record.
	Save(ctx context.Context, record *Record) error

	// Load returns all persisted records.
	Load(ctx context.Context) ([]*Record, error)
}

// Lifecycle event types published to the notification sink.
const (
	EventProposalCreated  = "proposal_created"
	EventApprovalRequired = "approval_required"
	EventApproved         = "approved"
	EventRejected         = "rejected"
	EventExpired          = "expired"
	EventExecuting        = "executing"
	EventCompleted        = "completed"
	EventFailed           = "failed"
	EventCancelled        = "cancelled"
	EventBlocked          = "blocked"
)

// LifecycleEvent is an outbound notification about a record.
type LifecycleEvent struct {
	Type   string    `json:"type"`
	Record *Record   `json:"record"`
	At     time.Time `json:"at"`
}

// Notifier receives lifecycle events for external rendering. Publish
// is fire-and-forget: implementations must never block the engine and
// must swallow delivery failures (logging them is their business).
type Notifier interface {
	Publish(ctx context.Context, event LifecycleEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(context.Context, LifecycleEvent) {}
