package learning

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Outcome tags distinguishing how a record reached its terminal state.
const (
	// TagCompleted marks a successful execution.
	TagCompleted = "completed"
	// TagFailed marks a failed or timed-out execution.
	TagFailed = "failed"
	// TagRejected marks an explicit human rejection.
	TagRejected = "rejected"
	// TagExpired marks an approval deadline expiry. Kept distinct from
	// TagRejected so expiries are never conflated with human judgment.
	TagExpired = "expired"
	// TagCancelled marks an operator cancellation mid-execution.
	TagCancelled = "cancelled"
	// TagBlocked marks a policy-blocked proposal.
	TagBlocked = "blocked"
)

// Event is one recorded outcome. Events are append-only; feedback may
// later attach a rating but events are never deleted by this package.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// RecordID links back to the terminal action record.
	RecordID string `json:"record_id"`

	// ActionKind is the symbolic action kind that ran.
	ActionKind string `json:"action_kind"`

	// IssueType is the issue or pattern type the action addressed.
	IssueType string `json:"issue_type"`

	// Success is whether the action resolved the issue.
	Success bool `json:"success"`

	// Tag describes how the record terminated (completed, failed,
	// rejected, expired, cancelled, blocked).
	Tag string `json:"tag"`

	// Rating is the optional 1-5 operator satisfaction rating,
	// 0 when none has been attached.
	Rating int `json:"rating,omitempty"`

	// Helpful is the operator's thumbs up/down, only meaningful when
	// feedback has been attached.
	Helpful bool `json:"helpful,omitempty"`

	// Comment is the optional free-text feedback.
	Comment string `json:"comment,omitempty"`

	// ResolutionDuration is how long the action took end to end.
	ResolutionDuration time.Duration `json:"resolution_duration"`

	// CreatedAt is when the outcome was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// EventStore persists learning events.
//
// Implementations can be Badger-backed or in-memory; the retry policy
// around storage failures lives in the service, not here.
type EventStore interface {
	// Append persists a new event.
	Append(ctx context.Context, event *Event) error

	// Update rewrites an existing event (used to attach feedback).
	Update(ctx context.Context, event *Event) error

	// ByKind returns all events for an action kind.
	ByKind(ctx context.Context, kind string) ([]Event, error)

	// ByRecordID returns the event for a record, or nil when absent.
	ByRecordID(ctx context.Context, recordID string) (*Event, error)

	// All returns every stored event ordered by creation time.
	All(ctx context.Context) ([]Event, error)
}

// InMemoryEventStore is an in-memory EventStore for tests and for the
// reference in-process build.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemoryEventStore creates an empty in-memory store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

// Append adds an event.
func (s *InMemoryEventStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

// Update rewrites the event with a matching ID.
func (s *InMemoryEventStore) Update(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == event.ID {
			s.events[i] = *event
			return nil
		}
	}
	return ErrEventNotFound
}

// ByKind returns events for an action kind.
func (s *InMemoryEventStore) ByKind(ctx context.Context, kind string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.ActionKind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByRecordID returns the event recorded for an action record.
func (s *InMemoryEventStore) ByRecordID(ctx context.Context, recordID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].RecordID == recordID {
			e := s.events[i]
			return &e, nil
		}
	}
	return nil, nil
}

// All returns every event ordered by creation time.
func (s *InMemoryEventStore) All(ctx context.Context) ([]Event, error) {
	s.mu.RLock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
