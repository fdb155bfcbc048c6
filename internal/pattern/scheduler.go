package pattern

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs pattern detection on a fixed cadence in the
// background, keeping detection off the proposal path.
//
// Thread Safety: all public methods are thread-safe. The running state
// is protected by a mutex to prevent races during Start/Stop.
type Scheduler struct {
	interval time.Duration
	detector *Detector
	source   EventSource
	registry *Registry
	logger   *zap.Logger

	// mu protects running and stopCh.
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the detection cadence. Defaults to 1 minute.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// NewScheduler creates a detection scheduler. It does not start
// automatically; call Start.
func NewScheduler(detector *Detector, source EventSource, registry *Registry, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		interval: time.Minute,
		detector: detector,
		source:   source,
		registry: registry,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins scheduled detection. Calling Start on a running
// scheduler returns an error without spawning a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("pattern detection scheduler started",
		zap.Duration("interval", s.interval))

	go s.run()
	return nil
}

// Stop halts scheduled detection. Stopping an already stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)

	s.logger.Info("pattern detection scheduler stopped")
}

// RunOnce executes one detection pass immediately and publishes the
// results. Called by the loop and usable directly for tests and
// operator-triggered refreshes.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	failures, err := s.source.FailureHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to read failure history: %w", err)
	}
	samples, err := s.source.MetricHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to read metric history: %w", err)
	}

	patterns := s.detector.Detect(failures, samples)
	s.registry.Publish(patterns)

	s.logger.Debug("pattern detection run complete",
		zap.Int("failures", len(failures)),
		zap.Int("samples", len(samples)),
		zap.Int("patterns", len(patterns)))
	return nil
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pattern scheduler panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Warn("pattern detection run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
