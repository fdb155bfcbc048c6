package engine

import "errors"

// Sentinel errors returned by engine operations. Handlers map these to
// transport-level responses; everything else is an internal failure.
var (
	// ErrValidation marks a malformed proposal or argument, rejected
	// before classification.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means no record exists for the given id.
	ErrNotFound = errors.New("record not found")

	// ErrPolicyBlocked means the risk tier is forbidden outright. The
	// record is created and terminally failed, never executed.
	ErrPolicyBlocked = errors.New("policy blocked")

	// ErrAlreadyResolved is the losing side of a race: the record
	// reached a resolution before this call. The record is unchanged.
	ErrAlreadyResolved = errors.New("record already resolved")

	// ErrTargetBusy means another action is already pending or
	// executing against the same target.
	ErrTargetBusy = errors.New("target busy")

	// ErrNotTerminal means feedback was submitted for a record that
	// has not reached a terminal state yet.
	ErrNotTerminal = errors.New("record not terminal")

	// ErrNotCancellable means the record is not in a cancellable state.
	ErrNotCancellable = errors.New("record not cancellable")

	// ErrClosed is returned after the engine has shut down.
	ErrClosed = errors.New("engine is closed")
)
