package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/fyrsmithlabs/remedyd/internal/learning"
)

const (
	eventPrefix       = "event/"
	eventRecordPrefix = "event_record/"
)

// EventStore persists learning events in Badger. The primary key is
// the event id; a secondary index maps record ids to event ids for
// feedback lookups. It implements learning.EventStore.
//
// Kind and aggregate queries scan the full event prefix; event volume
// is one per terminal record, well within scan territory.
type EventStore struct {
	db *DB
}

// NewEventStore creates an event store over an open database.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Append persists a new event and its record index entry.
func (s *EventStore) Append(ctx context.Context, event *learning.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	err = s.db.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(eventPrefix+event.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(eventRecordPrefix+event.RecordID), []byte(event.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.ID, err)
	}
	return nil
}

// Update rewrites an existing event.
func (s *EventStore) Update(ctx context.Context, event *learning.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	err = s.db.db.Update(func(txn *badger.Txn) error {
		key := []byte(eventPrefix + event.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return learning.ErrEventNotFound
			}
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		if errors.Is(err, learning.ErrEventNotFound) {
			return err
		}
		return fmt.Errorf("failed to update event %s: %w", event.ID, err)
	}
	return nil
}

// ByKind returns all events for an action kind.
func (s *EventStore) ByKind(ctx context.Context, kind string) ([]learning.Event, error) {
	events, err := s.scan(func(e *learning.Event) bool { return e.ActionKind == kind })
	if err != nil {
		return nil, fmt.Errorf("failed to load events for kind %s: %w", kind, err)
	}
	return events, nil
}

// ByRecordID returns the event for a record, or nil when absent.
func (s *EventStore) ByRecordID(ctx context.Context, recordID string) (*learning.Event, error) {
	var event *learning.Event

	err := s.db.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(eventRecordPrefix + recordID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var eventID string
		if err := idx.Value(func(val []byte) error {
			eventID = string(val)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get([]byte(eventPrefix + eventID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var e learning.Event
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			event = &e
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up event for record %s: %w", recordID, err)
	}
	return event, nil
}

// All returns every stored event ordered by creation time.
func (s *EventStore) All(ctx context.Context) ([]learning.Event, error) {
	events, err := s.scan(func(*learning.Event) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return events, nil
}

// scan iterates the event prefix and collects matches sorted by
// creation time.
func (s *EventStore) scan(match func(*learning.Event) bool) ([]learning.Event, error) {
	var out []learning.Event

	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e learning.Event
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("failed to unmarshal event %s: %w", it.Item().Key(), err)
				}
				if match(&e) {
					out = append(out, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
