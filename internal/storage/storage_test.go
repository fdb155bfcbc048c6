package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/engine"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(&Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.SyncWrites = false

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRecordStore_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	ctx := context.Background()

	rec := &engine.Record{
		ID: "rec-1",
		Proposal: engine.Proposal{
			Kind:   "restart-component",
			Target: "worker-1",
			Title:  "Restart worker",
			Params: map[string]any{"grace_seconds": float64(30)},
		},
		State:     engine.StateExecuting,
		CreatedAt: time.Now().Truncate(time.Millisecond),
		UpdatedAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Save(ctx, rec))

	// Upsert overwrites.
	rec.State = engine.StateCompleted
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "rec-1", loaded[0].ID)
	assert.Equal(t, engine.StateCompleted, loaded[0].State)
	assert.Equal(t, "restart-component", loaded[0].Proposal.Kind)
	assert.Equal(t, map[string]any{"grace_seconds": float64(30)}, loaded[0].Proposal.Params)
}

func TestRecordStore_LoadEmpty(t *testing.T) {
	store := NewRecordStore(newTestDB(t))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestEventStore_AppendAndQuery(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	events := []*learning.Event{
		{ID: "e1", RecordID: "r1", ActionKind: "clear-cache", Success: true, Tag: learning.TagCompleted, CreatedAt: base},
		{ID: "e2", RecordID: "r2", ActionKind: "restart-component", Success: false, Tag: learning.TagFailed, CreatedAt: base.Add(time.Second)},
		{ID: "e3", RecordID: "r3", ActionKind: "clear-cache", Success: true, Tag: learning.TagCompleted, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	byKind, err := store.ByKind(ctx, "clear-cache")
	require.NoError(t, err)
	require.Len(t, byKind, 2)
	assert.Equal(t, "e1", byKind[0].ID)
	assert.Equal(t, "e3", byKind[1].ID)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e1", all[0].ID)
	assert.Equal(t, "e3", all[2].ID)
}

func TestEventStore_ByRecordID(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &learning.Event{
		ID: "e1", RecordID: "r1", ActionKind: "clear-cache", Tag: learning.TagCompleted, CreatedAt: time.Now(),
	}))

	event, err := store.ByRecordID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "e1", event.ID)

	missing, err := store.ByRecordID(ctx, "r-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventStore_Update(t *testing.T) {
	db := newTestDB(t)
	store := NewEventStore(db)
	ctx := context.Background()

	event := &learning.Event{
		ID: "e1", RecordID: "r1", ActionKind: "clear-cache", Tag: learning.TagCompleted, CreatedAt: time.Now(),
	}
	require.NoError(t, store.Append(ctx, event))

	event.Rating = 5
	event.Helpful = true
	event.Comment = "fixed it"
	require.NoError(t, store.Update(ctx, event))

	got, err := store.ByRecordID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.Rating)
	assert.True(t, got.Helpful)

	err = store.Update(ctx, &learning.Event{ID: "missing"})
	assert.ErrorIs(t, err, learning.ErrEventNotFound)
}
