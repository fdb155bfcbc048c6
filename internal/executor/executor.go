// Package executor runs approved remediation actions against their
// targets under a timeout, with bounded retry for idempotent tiers and
// cooperative cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

const instrumentationName = "github.com/fyrsmithlabs/remedyd/internal/executor"

// Capability performs the real side effect for an action kind. It is
// an external collaborator and may be slow or flaky; the executor's
// timeout and retry policy is the defense against that.
type Capability interface {
	// Perform runs the action and returns a structured result payload.
	Perform(ctx context.Context, kind, target string, params map[string]any) (map[string]any, error)

	// SupportsRollback reports whether the action kind declares a
	// rollback procedure.
	SupportsRollback(kind string) bool
}

// Config configures the executor.
type Config struct {
	// TimeoutFloor is the minimum execution timeout regardless of the
	// proposal's estimated duration (default: 30s).
	TimeoutFloor time.Duration

	// MaxRetries bounds retries for idempotent SAFE/LOW actions
	// (default: 1). HIGH and CRITICAL actions never retry.
	MaxRetries int
}

// DefaultConfig returns executor defaults.
func DefaultConfig() *Config {
	return &Config{
		TimeoutFloor: 30 * time.Second,
		MaxRetries:   1,
	}
}

// Request describes one execution.
type Request struct {
	RecordID          string
	Kind              string
	Target            string
	Params            map[string]any
	EstimatedDuration time.Duration
	Tier              risk.Tier
}

// Outcome is the structured result of one execution.
type Outcome struct {
	// Result is the capability's payload on success.
	Result map[string]any

	// Err is the captured failure, nil on success.
	Err error

	// TimedOut is true when the failure was the executor's deadline.
	TimedOut bool

	// Cancelled is true when the caller's context was cancelled.
	Cancelled bool

	// RollbackAvailable is true when the action kind declares a
	// rollback procedure.
	RollbackAvailable bool

	// Attempts is how many times the capability was invoked.
	Attempts int

	// Started and Finished bound the execution wall time.
	Started  time.Time
	Finished time.Time
}

// Duration returns the execution wall time.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Executor invokes capabilities with the configured policy. Safe for
// concurrent use; each Execute call is independent.
type Executor struct {
	cfg    *Config
	cap    Capability
	logger *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	executionCounter metric.Int64Counter
	durationHist     metric.Float64Histogram
}

// New creates an executor. A nil config uses defaults.
func New(cfg *Config, capability Capability, logger *zap.Logger) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if capability == nil {
		return nil, errors.New("capability is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		cfg:    cfg,
		cap:    capability,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Executor) initMetrics() {
	var err error

	e.executionCounter, err = e.meter.Int64Counter(
		"remedyd.executor.executions_total",
		metric.WithDescription("Total number of action executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		e.logger.Warn("failed to create execution counter", zap.Error(err))
	}

	e.durationHist, err = e.meter.Float64Histogram(
		"remedyd.executor.execution_duration_seconds",
		metric.WithDescription("Action execution wall time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// Execute runs one action to completion. It blocks for up to the
// derived timeout per attempt; callers dispatch it onto their own
// goroutine. Cancellation via ctx is cooperative: a capability that
// ignores its context may keep running out-of-band after Execute
// returns a cancelled outcome.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	ctx, span := e.tracer.Start(ctx, "executor.execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("record_id", req.RecordID),
		attribute.String("kind", req.Kind),
		attribute.String("target", req.Target),
		attribute.String("tier", string(req.Tier)),
	)

	timeout := req.EstimatedDuration
	if timeout < e.cfg.TimeoutFloor {
		timeout = e.cfg.TimeoutFloor
	}

	attempts := 1
	if retriable(req.Tier) {
		attempts += e.cfg.MaxRetries
	}

	out := Outcome{
		RollbackAvailable: e.cap.SupportsRollback(req.Kind),
		Started:           time.Now(),
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt

		result, err := e.performOnce(ctx, req, timeout)
		if err == nil {
			out.Result = result
			out.Err = nil
			out.TimedOut = false
			break
		}

		out.Err = err
		out.TimedOut = errors.Is(err, context.DeadlineExceeded)
		out.Cancelled = ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)

		if out.Cancelled {
			e.logger.Info("execution cancelled; underlying operation may complete out-of-band",
				zap.String("record_id", req.RecordID),
				zap.String("kind", req.Kind),
				zap.String("target", req.Target))
			break
		}

		if attempt < attempts {
			e.logger.Warn("execution attempt failed, retrying",
				zap.String("record_id", req.RecordID),
				zap.String("kind", req.Kind),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}

	out.Finished = time.Now()

	status := "completed"
	if out.Err != nil {
		status = "failed"
		if out.Cancelled {
			status = "cancelled"
		}
	}
	if e.executionCounter != nil {
		e.executionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", req.Kind),
			attribute.String("status", status),
		))
	}
	if e.durationHist != nil {
		e.durationHist.Record(ctx, out.Duration().Seconds(), metric.WithAttributes(
			attribute.String("kind", req.Kind),
		))
	}

	return out
}

// performOnce invokes the capability under a per-attempt deadline.
func (e *Executor) performOnce(ctx context.Context, req Request, timeout time.Duration) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.cap.Perform(attemptCtx, req.Kind, req.Target, req.Params)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("action timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		return nil, err
	}
	return result, nil
}

// retriable reports whether a tier permits automatic retry. HIGH and
// CRITICAL actions never retry: a duplicate destructive effect is
// worse than a failed one.
func retriable(tier risk.Tier) bool {
	return tier == risk.TierSafe || tier == risk.TierLow
}
