package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAt(t *testing.T, store *InMemoryEventStore, event Event, at time.Time) {
	t.Helper()
	event.ID = event.RecordID
	event.CreatedAt = at
	require.NoError(t, store.Append(context.Background(), &event))
}

func TestInsights_Empty(t *testing.T) {
	svc := newTestService(t, NewInMemoryEventStore())

	insights, err := svc.Insights(context.Background())
	require.NoError(t, err)
	assert.Zero(t, insights.TotalEvents)
	assert.Equal(t, TrendInsufficient, insights.SatisfactionTrend)
}

func TestInsights_Aggregates(t *testing.T) {
	store := NewInMemoryEventStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	recordAt(t, store, Event{RecordID: "a", ActionKind: "restart-component", IssueType: "recurring_failure", Success: true, Tag: TagCompleted}, base)
	recordAt(t, store, Event{RecordID: "b", ActionKind: "restart-component", IssueType: "recurring_failure", Success: true, Tag: TagCompleted}, base.Add(time.Minute))
	recordAt(t, store, Event{RecordID: "c", ActionKind: "restart-component", IssueType: "recurring_failure", Success: true, Tag: TagCompleted}, base.Add(2*time.Minute))
	recordAt(t, store, Event{RecordID: "d", ActionKind: "clear-cache", IssueType: "performance_degradation", Success: false, Tag: TagFailed}, base.Add(3*time.Minute))
	recordAt(t, store, Event{RecordID: "e", ActionKind: "clear-cache", IssueType: "performance_degradation", Success: true, Tag: TagCompleted}, base.Add(4*time.Minute))
	recordAt(t, store, Event{RecordID: "f", ActionKind: "clear-cache", IssueType: "performance_degradation", Success: true, Tag: TagCompleted}, base.Add(5*time.Minute))

	svc := newTestService(t, store)
	insights, err := svc.Insights(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, insights.TotalEvents)
	assert.InDelta(t, 5.0/6.0, insights.OverallSuccessRate, 1e-9)

	require.Len(t, insights.ActionKinds, 2)
	assert.Equal(t, "clear-cache", insights.ActionKinds[0].ActionKind)
	assert.InDelta(t, 2.0/3.0, insights.ActionKinds[0].SuccessRate, 1e-9)

	// restart-component has the better success rate.
	require.NotEmpty(t, insights.BestPerformingKinds)
	assert.Equal(t, "restart-component", insights.BestPerformingKinds[0])

	require.Len(t, insights.MostCommonIssues, 2)
	assert.Equal(t, 3, insights.MostCommonIssues[0].Count)
}

func TestInsights_BestPerformingRequiresSamples(t *testing.T) {
	store := NewInMemoryEventStore()
	base := time.Now()

	// Only two samples: below the minimum of three.
	recordAt(t, store, Event{RecordID: "a", ActionKind: "scale-component", Success: true, Tag: TagCompleted}, base)
	recordAt(t, store, Event{RecordID: "b", ActionKind: "scale-component", Success: true, Tag: TagCompleted}, base.Add(time.Minute))

	svc := newTestService(t, store)
	insights, err := svc.Insights(context.Background())
	require.NoError(t, err)
	assert.Empty(t, insights.BestPerformingKinds)
}

func TestSatisfactionTrend(t *testing.T) {
	tests := []struct {
		name    string
		ratings []int
		want    string
	}{
		{"no ratings", nil, TrendInsufficient},
		{"too few", []int{3, 4}, TrendInsufficient},
		{"improving", []int{2, 2, 2, 3, 3, 3, 5, 5, 5}, TrendImproving},
		{"declining", []int{5, 5, 5, 3, 3, 3, 2, 2, 2}, TrendDeclining},
		{"stable", []int{4, 4, 4, 3, 5, 4, 4, 4, 4}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, satisfactionTrend(tt.ratings))
		})
	}
}

func TestInsights_TrendFromStoredRatings(t *testing.T) {
	store := NewInMemoryEventStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	ratings := []int{2, 2, 2, 3, 3, 3, 5, 5, 5}
	for i, r := range ratings {
		recordAt(t, store, Event{
			RecordID:   string(rune('a' + i)),
			ActionKind: "restart-component",
			Success:    true,
			Tag:        TagCompleted,
			Rating:     r,
		}, base.Add(time.Duration(i)*time.Minute))
	}

	svc := newTestService(t, store)
	insights, err := svc.Insights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, insights.SatisfactionTrend)
	assert.InDelta(t, 30.0/9.0, insights.AverageSatisfaction, 1e-9)
}
