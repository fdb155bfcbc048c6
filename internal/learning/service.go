package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/remedyd/internal/learning"

// Sentinel errors.
var (
	// ErrEventNotFound is returned when no event exists for a record.
	ErrEventNotFound = errors.New("learning event not found")
	// ErrInvalidRating is returned for ratings outside 1-5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Service provides outcome recording and aggregate statistics.
type Service interface {
	// Record appends an outcome event. Storage failures are absorbed:
	// the event is parked for retry and Record still returns nil, so
	// callers never block a terminal state on learning persistence.
	Record(ctx context.Context, event *Event) error

	// SuccessRate returns successes/(successes+failures) and the
	// sample count for an action kind. Zero samples yields (0, 0).
	SuccessRate(ctx context.Context, kind string) (float64, int, error)

	// Insights aggregates all recorded outcomes.
	Insights(ctx context.Context) (*Insights, error)

	// AttachFeedback adds operator judgment to the event recorded for
	// an action record.
	AttachFeedback(ctx context.Context, recordID string, rating int, helpful bool, comment string) error

	// Close stops the background retry loop.
	Close() error
}

// Config configures the learning service.
type Config struct {
	// RetryInterval paces the best-effort retry of failed writes
	// (default: 30s).
	RetryInterval time.Duration

	// MaxPending bounds the retry queue; beyond it the oldest parked
	// event is dropped with a log line (default: 1024).
	MaxPending int

	// MinSamplesForBest is the sample floor for an action kind to
	// appear among best performers (default: 3).
	MinSamplesForBest int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetryInterval:     30 * time.Second,
		MaxPending:        1024,
		MinSamplesForBest: 3,
	}
}

// service implements Service.
type service struct {
	cfg    *Config
	store  EventStore
	logger *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	recordCounter   metric.Int64Counter
	feedbackCounter metric.Int64Counter
	retryGauge      metric.Int64UpDownCounter

	mu      sync.Mutex
	pending []*Event
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewService creates a learning service and starts its retry loop.
func NewService(cfg *Config, store EventStore, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		cfg:    cfg,
		store:  store,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.initMetrics()

	go s.retryLoop()

	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.recordCounter, err = s.meter.Int64Counter(
		"remedyd.learning.events_total",
		metric.WithDescription("Total number of learning events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		s.logger.Warn("failed to create record counter", zap.Error(err))
	}

	s.feedbackCounter, err = s.meter.Int64Counter(
		"remedyd.learning.feedbacks_total",
		metric.WithDescription("Total number of feedback submissions"),
		metric.WithUnit("{feedback}"),
	)
	if err != nil {
		s.logger.Warn("failed to create feedback counter", zap.Error(err))
	}

	s.retryGauge, err = s.meter.Int64UpDownCounter(
		"remedyd.learning.retry_pending",
		metric.WithDescription("Learning events parked for retry"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		s.logger.Warn("failed to create retry gauge", zap.Error(err))
	}
}

// Record appends an outcome event.
func (s *service) Record(ctx context.Context, event *Event) error {
	ctx, span := s.tracer.Start(ctx, "learning.record")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	span.SetAttributes(
		attribute.String("action_kind", event.ActionKind),
		attribute.Bool("success", event.Success),
		attribute.String("tag", event.Tag),
	)

	if err := s.store.Append(ctx, event); err != nil {
		// Losing a learning signal is recoverable; park it and move on.
		s.logger.Warn("failed to record learning event, queued for retry",
			zap.String("record_id", event.RecordID),
			zap.String("action_kind", event.ActionKind),
			zap.Error(err))
		s.park(ctx, event)
		return nil
	}

	if s.recordCounter != nil {
		s.recordCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action_kind", event.ActionKind),
			attribute.String("tag", event.Tag),
		))
	}
	return nil
}

// park queues an event for the retry loop.
func (s *service) park(ctx context.Context, event *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= s.cfg.MaxPending {
		dropped := s.pending[0]
		s.pending = s.pending[1:]
		s.logger.Error("learning retry queue full, dropping oldest event",
			zap.String("record_id", dropped.RecordID),
			zap.String("action_kind", dropped.ActionKind))
	}
	s.pending = append(s.pending, event)
	if s.retryGauge != nil {
		s.retryGauge.Add(ctx, 1)
	}
}

// retryLoop drains the parked events on a paced schedule. The rate
// limiter is the clock: each flush waits for the next token, so a slow
// flush never compounds into back-to-back retries.
func (s *service) retryLoop() {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	limiter := rate.NewLimiter(rate.Every(s.cfg.RetryInterval), 1)
	// Consume the initial burst token so the first flush waits a full
	// interval instead of firing immediately.
	limiter.Allow()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s.flushPending()
	}
}

// flushPending retries every parked event once.
func (s *service) flushPending() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var failed []*Event
	for _, event := range batch {
		if err := s.store.Append(ctx, event); err != nil {
			// Second failure: log again, never drop silently.
			s.logger.Error("learning event retry failed, re-queueing",
				zap.String("record_id", event.RecordID),
				zap.String("action_kind", event.ActionKind),
				zap.Error(err))
			failed = append(failed, event)
			continue
		}
		if s.retryGauge != nil {
			s.retryGauge.Add(ctx, -1)
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.pending = append(failed, s.pending...)
		s.mu.Unlock()
	}
}

// SuccessRate computes N/(N+M) for an action kind.
func (s *service) SuccessRate(ctx context.Context, kind string) (float64, int, error) {
	ctx, span := s.tracer.Start(ctx, "learning.success_rate")
	defer span.End()
	span.SetAttributes(attribute.String("action_kind", kind))

	events, err := s.store.ByKind(ctx, kind)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load events for %s: %w", kind, err)
	}

	// Only execution outcomes count; rejections, expiries, and
	// cancellations say nothing about whether the action works.
	successes, total := 0, 0
	for _, e := range events {
		if e.Tag != TagCompleted && e.Tag != TagFailed {
			continue
		}
		total++
		if e.Success {
			successes++
		}
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(successes) / float64(total), total, nil
}

// AttachFeedback adds operator judgment to a record's event.
func (s *service) AttachFeedback(ctx context.Context, recordID string, rating int, helpful bool, comment string) error {
	ctx, span := s.tracer.Start(ctx, "learning.attach_feedback")
	defer span.End()
	span.SetAttributes(
		attribute.String("record_id", recordID),
		attribute.Int("rating", rating),
	)

	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	event, err := s.store.ByRecordID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to look up event for record %s: %w", recordID, err)
	}
	if event == nil {
		return ErrEventNotFound
	}

	event.Rating = rating
	event.Helpful = helpful
	event.Comment = comment

	if err := s.store.Update(ctx, event); err != nil {
		return fmt.Errorf("failed to attach feedback: %w", err)
	}

	if s.feedbackCounter != nil {
		s.feedbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("helpful", helpful),
		))
	}

	s.logger.Info("attached feedback",
		zap.String("record_id", recordID),
		zap.Int("rating", rating),
		zap.Bool("helpful", helpful))
	return nil
}

// Close stops the retry loop.
func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return nil
}
