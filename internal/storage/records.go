package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/fyrsmithlabs/remedyd/internal/engine"
)

const recordPrefix = "record/"

// RecordStore persists action records in Badger, one JSON value per
// record id. It implements engine.RecordStore.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a record store over an open database.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Save upserts one record.
func (s *RecordStore) Save(ctx context.Context, record *engine.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	err = s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+record.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", record.ID, err)
	}
	return nil
}

// Load returns every persisted record.
func (s *RecordStore) Load(ctx context.Context) ([]*engine.Record, error) {
	var out []*engine.Record

	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var r engine.Record
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("failed to unmarshal record %s: %w", it.Item().Key(), err)
				}
				out = append(out, &r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return out, nil
}
