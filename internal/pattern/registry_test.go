package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_PublishReplaces(t *testing.T) {
	r := NewRegistry()

	first := &Pattern{ID: "p1", Type: TypeRecurringFailure, Target: "worker-3", Confidence: 0.9}
	r.Publish([]*Pattern{first})
	require.Len(t, r.Snapshot(), 1)

	// A new run supersedes the previous pattern for the same key and
	// drops keys that no longer detect.
	second := &Pattern{ID: "p2", Type: TypeRecurringFailure, Target: "worker-3", Confidence: 0.9}
	r.Publish([]*Pattern{second})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "p2", snap[0].ID)

	r.Publish(nil)
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_ForTarget(t *testing.T) {
	r := NewRegistry()
	r.Publish([]*Pattern{
		{ID: "a", Type: TypeRecurringFailure, Target: "worker-3"},
		{ID: "b", Type: TypePerformanceDegradation, Target: "worker-3"},
		{ID: "c", Type: TypeRecurringFailure, Target: "db-primary"},
	})

	got := r.ForTarget("worker-3")
	require.Len(t, got, 2)
	assert.Empty(t, r.ForTarget("unknown"))
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Publish([]*Pattern{{ID: "a", Type: TypeRecurringFailure, Target: "worker-3"}})

	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

// staticSource serves fixed history snapshots.
type staticSource struct {
	failures []FailureEvent
	samples  []MetricSample
}

func (s *staticSource) FailureHistory(ctx context.Context) ([]FailureEvent, error) {
	return s.failures, nil
}

func (s *staticSource) MetricHistory(ctx context.Context) ([]MetricSample, error) {
	return s.samples, nil
}

func TestScheduler_RunOnce(t *testing.T) {
	registry := NewRegistry()
	source := &staticSource{failures: steadyFailures("worker-3", 4, time.Minute)}

	s, err := NewScheduler(NewDetector(nil), source, registry, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))

	snap := registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "worker-3", snap[0].Target)
}

func TestScheduler_StartStop(t *testing.T) {
	registry := NewRegistry()
	source := &staticSource{}

	s, err := NewScheduler(NewDetector(nil), source, registry, zap.NewNop(),
		WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start must fail")

	s.Stop()
	s.Stop() // idempotent
}

func TestNewScheduler_RequiresDependencies(t *testing.T) {
	_, err := NewScheduler(nil, &staticSource{}, NewRegistry(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewScheduler(NewDetector(nil), nil, NewRegistry(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewScheduler(NewDetector(nil), &staticSource{}, nil, zap.NewNop())
	assert.Error(t, err)
}
