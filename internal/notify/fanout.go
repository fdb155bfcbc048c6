package notify

import (
	"context"

	"github.com/fyrsmithlabs/remedyd/internal/engine"
	"github.com/fyrsmithlabs/remedyd/internal/pattern"
)

// Fanout publishes each lifecycle event to every wrapped notifier.
type Fanout []engine.Notifier

// Publish delivers the event to all notifiers in order.
func (f Fanout) Publish(ctx context.Context, ev engine.LifecycleEvent) {
	for _, n := range f {
		n.Publish(ctx, ev)
	}
}

// PatternFeed turns lifecycle events into pattern-detector
// observations: every failed action becomes a failure event for its
// target, so recurring failures surface as detected patterns.
type PatternFeed struct {
	source *pattern.MemorySource
}

// NewPatternFeed creates a feed writing into source.
func NewPatternFeed(source *pattern.MemorySource) *PatternFeed {
	return &PatternFeed{source: source}
}

// Publish records failed executions; other events carry no failure
// signal and are ignored.
func (p *PatternFeed) Publish(_ context.Context, ev engine.LifecycleEvent) {
	if ev.Type != engine.EventFailed || ev.Record == nil {
		return
	}
	p.source.RecordFailure(ev.Record.Proposal.Target, ev.Record.Proposal.Kind, ev.At)
}
