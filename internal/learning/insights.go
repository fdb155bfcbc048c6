package learning

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Satisfaction trend directions.
const (
	TrendImproving    = "improving"
	TrendDeclining    = "declining"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// trendBand is the mean-rating delta below which the trend reads as
// stable.
const trendBand = 0.25

// KindStats summarizes outcomes for one action kind.
type KindStats struct {
	ActionKind    string  `json:"action_kind"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
	AverageRating float64 `json:"average_rating,omitempty"`
}

// IssueCount is an issue type with its occurrence count.
type IssueCount struct {
	IssueType string `json:"issue_type"`
	Count     int    `json:"count"`
}

// Insights is the aggregate view over all recorded outcomes.
type Insights struct {
	TotalEvents         int          `json:"total_events"`
	OverallSuccessRate  float64      `json:"overall_success_rate"`
	ActionKinds         []KindStats  `json:"action_kinds"`
	BestPerformingKinds []string     `json:"best_performing_kinds"`
	MostCommonIssues    []IssueCount `json:"most_common_issues"`
	AverageSatisfaction float64      `json:"average_satisfaction"`
	SatisfactionTrend   string       `json:"satisfaction_trend"`
	GeneratedAt         time.Time    `json:"generated_at"`
}

// Insights aggregates all recorded outcomes.
func (s *service) Insights(ctx context.Context) (*Insights, error) {
	ctx, span := s.tracer.Start(ctx, "learning.insights")
	defer span.End()

	events, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	out := &Insights{
		TotalEvents:       len(events),
		SatisfactionTrend: TrendInsufficient,
		GeneratedAt:       time.Now(),
	}
	if len(events) == 0 {
		return out, nil
	}

	byKind := make(map[string]*KindStats)
	issueCounts := make(map[string]int)
	var (
		successes  int
		ratings    []int // ordered by event creation time
		ratingSums = make(map[string]int)
		ratingNs   = make(map[string]int)
	)

	for _, e := range events {
		stats, ok := byKind[e.ActionKind]
		if !ok {
			stats = &KindStats{ActionKind: e.ActionKind}
			byKind[e.ActionKind] = stats
		}
		if e.Success {
			stats.Successes++
			successes++
		} else {
			stats.Failures++
		}
		if e.IssueType != "" {
			issueCounts[e.IssueType]++
		}
		if e.Rating > 0 {
			ratings = append(ratings, e.Rating)
			ratingSums[e.ActionKind] += e.Rating
			ratingNs[e.ActionKind]++
		}
	}

	out.OverallSuccessRate = float64(successes) / float64(len(events))

	for kind, stats := range byKind {
		total := stats.Successes + stats.Failures
		stats.SuccessRate = float64(stats.Successes) / float64(total)
		if n := ratingNs[kind]; n > 0 {
			stats.AverageRating = float64(ratingSums[kind]) / float64(n)
		}
		out.ActionKinds = append(out.ActionKinds, *stats)
	}
	sort.Slice(out.ActionKinds, func(i, j int) bool {
		return out.ActionKinds[i].ActionKind < out.ActionKinds[j].ActionKind
	})

	out.BestPerformingKinds = bestPerforming(out.ActionKinds, s.cfg.MinSamplesForBest)
	out.MostCommonIssues = sortedIssues(issueCounts)

	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		out.AverageSatisfaction = float64(sum) / float64(len(ratings))
	}
	out.SatisfactionTrend = satisfactionTrend(ratings)

	return out, nil
}

// bestPerforming returns kinds with enough samples, best success rate
// first.
func bestPerforming(kinds []KindStats, minSamples int) []string {
	eligible := make([]KindStats, 0, len(kinds))
	for _, k := range kinds {
		if k.Successes+k.Failures >= minSamples {
			eligible = append(eligible, k)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].SuccessRate != eligible[j].SuccessRate {
			return eligible[i].SuccessRate > eligible[j].SuccessRate
		}
		return eligible[i].ActionKind < eligible[j].ActionKind
	})

	out := make([]string, 0, len(eligible))
	for _, k := range eligible {
		out = append(out, k.ActionKind)
	}
	return out
}

// sortedIssues returns issue types by descending count.
func sortedIssues(counts map[string]int) []IssueCount {
	out := make([]IssueCount, 0, len(counts))
	for issue, n := range counts {
		out = append(out, IssueCount{IssueType: issue, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IssueType < out[j].IssueType
	})
	return out
}

// satisfactionTrend compares the most recent third of ratings against
// the earliest third.
func satisfactionTrend(ratings []int) string {
	third := len(ratings) / 3
	if third == 0 {
		return TrendInsufficient
	}

	early, recent := 0.0, 0.0
	for _, r := range ratings[:third] {
		early += float64(r)
	}
	for _, r := range ratings[len(ratings)-third:] {
		recent += float64(r)
	}
	early /= float64(third)
	recent /= float64(third)

	switch delta := recent - early; {
	case delta > trendBand:
		return TrendImproving
	case delta < -trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}
