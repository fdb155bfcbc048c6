package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, store EventStore) Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RetryInterval = 10 * time.Millisecond
	svc, err := NewService(cfg, store, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestSuccessRate_Exact(t *testing.T) {
	store := NewInMemoryEventStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	// 3 successes, 1 failure.
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, &Event{RecordID: "r", ActionKind: "restart-component", Success: true, Tag: TagCompleted}))
	}
	require.NoError(t, svc.Record(ctx, &Event{RecordID: "r", ActionKind: "restart-component", Success: false, Tag: TagFailed}))

	rate, n, err := svc.SuccessRate(ctx, "restart-component")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 0.75, rate)
}

func TestSuccessRate_IgnoresNonExecutionOutcomes(t *testing.T) {
	store := NewInMemoryEventStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, &Event{RecordID: "r1", ActionKind: "restart-component", Success: true, Tag: TagCompleted}))
	require.NoError(t, svc.Record(ctx, &Event{RecordID: "r2", ActionKind: "restart-component", Tag: TagRejected}))
	require.NoError(t, svc.Record(ctx, &Event{RecordID: "r3", ActionKind: "restart-component", Tag: TagExpired}))
	require.NoError(t, svc.Record(ctx, &Event{RecordID: "r4", ActionKind: "restart-component", Tag: TagCancelled}))

	rate, n, err := svc.SuccessRate(ctx, "restart-component")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, rate)
}

func TestSuccessRate_NoHistory(t *testing.T) {
	svc := newTestService(t, NewInMemoryEventStore())

	rate, n, err := svc.SuccessRate(context.Background(), "clear-cache")
	require.NoError(t, err)
	assert.Zero(t, rate)
	assert.Zero(t, n)
}

func TestRecord_AssignsIDAndTimestamp(t *testing.T) {
	store := NewInMemoryEventStore()
	svc := newTestService(t, store)

	event := &Event{RecordID: "rec-1", ActionKind: "clear-cache", Success: true, Tag: TagCompleted}
	require.NoError(t, svc.Record(context.Background(), event))

	stored, err := store.ByRecordID(context.Background(), "rec-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestAttachFeedback(t *testing.T) {
	store := NewInMemoryEventStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, &Event{RecordID: "rec-1", ActionKind: "restart-component", Success: true, Tag: TagCompleted}))

	require.NoError(t, svc.AttachFeedback(ctx, "rec-1", 4, true, "worked fine"))

	stored, err := store.ByRecordID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Rating)
	assert.True(t, stored.Helpful)
	assert.Equal(t, "worked fine", stored.Comment)
}

func TestAttachFeedback_Validation(t *testing.T) {
	svc := newTestService(t, NewInMemoryEventStore())
	ctx := context.Background()

	err := svc.AttachFeedback(ctx, "rec-1", 0, true, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	err = svc.AttachFeedback(ctx, "rec-1", 6, true, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	err = svc.AttachFeedback(ctx, "missing", 3, true, "")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

// flakyStore fails the first failures appends, then delegates to the
// wrapped in-memory store.
type flakyStore struct {
	*InMemoryEventStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Append(ctx context.Context, event *Event) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("storage unavailable")
	}
	f.mu.Unlock()
	return f.InMemoryEventStore.Append(ctx, event)
}

func TestRecord_RetriesFailedWrites(t *testing.T) {
	store := &flakyStore{InMemoryEventStore: NewInMemoryEventStore(), failures: 1}
	svc := newTestService(t, store)
	ctx := context.Background()

	// The first append fails; Record absorbs the error.
	require.NoError(t, svc.Record(ctx, &Event{RecordID: "rec-1", ActionKind: "clear-cache", Success: true, Tag: TagCompleted}))

	// The retry loop lands the event shortly after.
	require.Eventually(t, func() bool {
		stored, err := store.ByRecordID(ctx, "rec-1")
		return err == nil && stored != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecord_SecondFailureKeepsEventQueued(t *testing.T) {
	store := &flakyStore{InMemoryEventStore: NewInMemoryEventStore(), failures: 3}
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, &Event{RecordID: "rec-1", ActionKind: "clear-cache", Success: true, Tag: TagCompleted}))

	// Even after repeated retry failures the event eventually lands.
	require.Eventually(t, func() bool {
		stored, err := store.ByRecordID(ctx, "rec-1")
		return err == nil && stored != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClose_UnblocksRetryPacer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Hour
	svc, err := NewService(cfg, NewInMemoryEventStore(), zap.NewNop())
	require.NoError(t, err)

	// Close must cancel the pacer's wait, not sit out the interval.
	done := make(chan struct{})
	go func() {
		_ = svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on the retry pacer")
	}
}

func TestClose_Idempotent(t *testing.T) {
	svc, err := NewService(nil, NewInMemoryEventStore(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}
