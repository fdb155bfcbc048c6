package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
	"github.com/fyrsmithlabs/remedyd/internal/pattern"
	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

const instrumentationName = "github.com/fyrsmithlabs/remedyd/internal/engine"

// blockedReason is the terminal reason for policy-blocked records;
// outcome tagging keys off it to separate blocks from real failures.
const blockedReason = "blocked by policy"

// Service is the orchestration API exposed to transports.
type Service interface {
	// Submit validates, classifies, and routes a proposal. The returned
	// record reflects the state after routing: auto-approved proposals
	// are already executing, gated ones are pending approval. A policy
	// block returns the terminally failed record together with
	// ErrPolicyBlocked.
	Submit(ctx context.Context, p Proposal) (*Record, error)

	// Approve resolves a pending approval in favor of execution.
	Approve(ctx context.Context, id, approverID, reason string) (*Record, error)

	// Reject resolves a pending approval against execution.
	Reject(ctx context.Context, id, approverID, reason string) (*Record, error)

	// Cancel stops an executing action. Cancellation is cooperative:
	// the underlying operation may still complete out-of-band.
	Cancel(ctx context.Context, id, reason string) (*Record, error)

	// Get returns a copy of one record.
	Get(ctx context.Context, id string) (*Record, error)

	// PendingApprovals lists records awaiting a decision, oldest first.
	PendingApprovals(ctx context.Context) ([]*Record, error)

	// Records lists all records, newest first.
	Records(ctx context.Context) ([]*Record, error)

	// SubmitFeedback attaches operator judgment to a terminal record.
	SubmitFeedback(ctx context.Context, id string, rating int, helpful bool, comment string) error

	// Insights returns aggregate learning statistics.
	Insights(ctx context.Context) (*learning.Insights, error)

	// Close stops the sweep loop, cancels in-flight executions, and
	// waits for their goroutines to drain.
	Close() error
}

// Config configures the engine.
type Config struct {
	// SweepInterval paces the approval-deadline sweep (default: 30s).
	SweepInterval time.Duration
}

// DefaultConfig returns engine defaults.
func DefaultConfig() *Config {
	return &Config{
		SweepInterval: 30 * time.Second,
	}
}

// Deps are the engine's collaborators. Executor and Learning are
// required; the rest fall back to defaults.
type Deps struct {
	Classifier *risk.Classifier
	Policy     *risk.PolicyProvider
	Executor   *executor.Executor
	Learning   learning.Service
	Store      RecordStore
	Patterns   *pattern.Registry
	Notifier   Notifier
}

// engine implements Service. It is the single writer of record state:
// every transition runs under mu, executions run outside it.
type engine struct {
	cfg        *Config
	classifier *risk.Classifier
	policy     *risk.PolicyProvider
	exec       *executor.Executor
	learning   learning.Service
	store      RecordStore
	patterns   *pattern.Registry
	notifier   Notifier
	logger     *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	proposalCounter   metric.Int64Counter
	transitionCounter metric.Int64Counter
	approvalWait      metric.Float64Histogram

	mu      sync.Mutex
	records map[string]*Record
	active  map[string]string   // target -> record id holding the target
	waiting map[string][]string // target -> queued record ids, FIFO
	cancels map[string]context.CancelFunc
	closed  bool

	execCtx    context.Context
	execCancel context.CancelFunc
	execWG     sync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates the engine, recovers persisted records, and starts the
// approval-deadline sweep.
func New(cfg *Config, deps Deps, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if deps.Learning == nil {
		return nil, errors.New("learning service is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = risk.NewClassifier(nil)
	}
	if deps.Policy == nil {
		deps.Policy = risk.NewPolicyProvider(nil)
	}
	if deps.Store == nil {
		deps.Store = NewInMemoryRecordStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	execCtx, execCancel := context.WithCancel(context.Background())

	e := &engine{
		cfg:        cfg,
		classifier: deps.Classifier,
		policy:     deps.Policy,
		exec:       deps.Executor,
		learning:   deps.Learning,
		store:      deps.Store,
		patterns:   deps.Patterns,
		notifier:   deps.Notifier,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
		records:    make(map[string]*Record),
		active:     make(map[string]string),
		waiting:    make(map[string][]string),
		cancels:    make(map[string]context.CancelFunc),
		execCtx:    execCtx,
		execCancel: execCancel,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	e.initMetrics()

	if err := e.recover(context.Background()); err != nil {
		execCancel()
		return nil, fmt.Errorf("failed to recover records: %w", err)
	}

	go e.sweepLoop()

	return e, nil
}

func (e *engine) initMetrics() {
	var err error

	e.proposalCounter, err = e.meter.Int64Counter(
		"remedyd.engine.proposals_total",
		metric.WithDescription("Total number of submitted proposals"),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		e.logger.Warn("failed to create proposal counter", zap.Error(err))
	}

	e.transitionCounter, err = e.meter.Int64Counter(
		"remedyd.engine.transitions_total",
		metric.WithDescription("Total number of record state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		e.logger.Warn("failed to create transition counter", zap.Error(err))
	}

	e.approvalWait, err = e.meter.Float64Histogram(
		"remedyd.engine.approval_wait_seconds",
		metric.WithDescription("Time a proposal spent waiting for an approval decision"),
		metric.WithUnit("s"),
	)
	if err != nil {
		e.logger.Warn("failed to create approval wait histogram", zap.Error(err))
	}
}

// recordApprovalWait observes how long the record sat in
// pending_approval before resolution.
func (e *engine) recordApprovalWait(ctx context.Context, r *Record, resolution string) {
	if e.approvalWait == nil || r.Approval.RequestedAt.IsZero() {
		return
	}
	e.approvalWait.Record(ctx, r.Approval.ResolvedAt.Sub(r.Approval.RequestedAt).Seconds(),
		metric.WithAttributes(
			attribute.String("tier", string(r.Assessment.Tier)),
			attribute.String("resolution", resolution),
		))
}

// recover reloads persisted records. Executions do not survive a
// restart, so any record caught mid-lifecycle is terminally failed;
// terminal records that never reached the learning store get their
// outcome recorded now.
func (e *engine) recover(ctx context.Context) error {
	loaded, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	for _, r := range loaded {
		if !r.State.Terminal() {
			prior := r.State
			r.State = StateFailed
			r.Reason = "interrupted by restart"
			r.Error = fmt.Sprintf("process restarted while record was %s", prior)
			r.UpdatedAt = time.Now()
			r.LearningRecorded = false
			e.logger.Warn("marking interrupted record failed",
				zap.String("record_id", r.ID),
				zap.String("prior_state", string(prior)))
		}
		e.records[r.ID] = r
		if !r.LearningRecorded {
			e.recordOutcomeLocked(ctx, r)
		}
		e.saveLocked(ctx, r)
	}

	if len(loaded) > 0 {
		e.logger.Info("recovered records", zap.Int("count", len(loaded)))
	}
	return nil
}

// Submit validates, classifies, and routes a proposal.
func (e *engine) Submit(ctx context.Context, p Proposal) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "engine.submit")
	defer span.End()

	if err := validateProposal(p); err != nil {
		return nil, err
	}

	e.enrichEvidence(&p)

	// History lookup and classification stay outside the lock; both
	// are read-only and the assessment is immutable once computed.
	rate, samples, err := e.learning.SuccessRate(ctx, p.Kind)
	if err != nil {
		// Classification degrades to no-history rather than refusing
		// the proposal.
		e.logger.Warn("failed to load action history, classifying without it",
			zap.String("kind", p.Kind), zap.Error(err))
		rate, samples = 0, 0
	}

	assessment := e.classifier.Classify(risk.Input{
		Kind:              p.Kind,
		Target:            p.Target,
		Factors:           p.Evidence.Factors,
		PatternConfidence: p.Evidence.PatternConfidence,
	}, risk.History{SuccessRate: rate, Samples: samples})

	span.SetAttributes(
		attribute.String("kind", p.Kind),
		attribute.String("target", p.Target),
		attribute.String("tier", string(assessment.Tier)),
	)

	pol := e.policy.Current()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	now := time.Now()
	r := &Record{
		ID:         uuid.New().String(),
		Proposal:   p,
		Assessment: assessment,
		State:      StateProposed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if e.proposalCounter != nil {
		e.proposalCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", p.Kind),
			attribute.String("tier", string(assessment.Tier)),
		))
	}

	if _, busy := e.active[p.Target]; busy {
		if pol.TargetBusy == risk.TargetBusyQueue {
			e.records[r.ID] = r
			e.waiting[p.Target] = append(e.waiting[p.Target], r.ID)
			r.Reason = "queued behind active action on target"
			e.saveLocked(ctx, r)
			e.publish(EventProposalCreated, r)
			e.logger.Info("proposal queued, target busy",
				zap.String("record_id", r.ID),
				zap.String("target", p.Target))
			return r.clone(), nil
		}
		return nil, fmt.Errorf("%w: target %s has an active action", ErrTargetBusy, p.Target)
	}

	e.records[r.ID] = r
	e.active[p.Target] = r.ID
	e.publish(EventProposalCreated, r)

	return e.routeLocked(ctx, r, pol)
}

// routeLocked applies the policy disposition to a freshly created or
// freshly promoted record. Caller holds mu.
func (e *engine) routeLocked(ctx context.Context, r *Record, pol *risk.Policy) (*Record, error) {
	switch pol.DispositionFor(r.Assessment.Tier) {
	case risk.DispositionBlock:
		r.Error = fmt.Sprintf("action kind %s at tier %s is blocked by policy", r.Proposal.Kind, r.Assessment.Tier)
		e.transitionLocked(ctx, r, StateFailed, blockedReason)
		e.finalizeLocked(ctx, r, EventBlocked)
		e.logger.Warn("proposal blocked by policy",
			zap.String("record_id", r.ID),
			zap.String("kind", r.Proposal.Kind),
			zap.String("tier", string(r.Assessment.Tier)))
		return r.clone(), ErrPolicyBlocked

	case risk.DispositionAutoApprove:
		e.transitionLocked(ctx, r, StateAutoApproved, "auto-approved by policy")
		e.publish(EventApproved, r)
		e.startExecutionLocked(ctx, r)
		return r.clone(), nil

	default: // require approval
		now := time.Now()
		r.Approval = ApprovalMeta{
			Required:    true,
			RequestedAt: now,
			Deadline:    now.Add(pol.ApprovalTimeoutFor(r.Assessment.Tier)),
		}
		e.transitionLocked(ctx, r, StatePendingApproval, "awaiting approval")
		e.publish(EventApprovalRequired, r)
		e.logger.Info("approval required",
			zap.String("record_id", r.ID),
			zap.String("kind", r.Proposal.Kind),
			zap.String("tier", string(r.Assessment.Tier)),
			zap.Time("deadline", r.Approval.Deadline))
		return r.clone(), nil
	}
}

// Approve resolves a pending approval in favor of execution.
func (e *engine) Approve(ctx context.Context, id, approverID, reason string) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "engine.approve")
	defer span.End()
	span.SetAttributes(attribute.String("record_id", id))

	if approverID == "" {
		return nil, fmt.Errorf("%w: approver id is required", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	r, ok := e.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.State != StatePendingApproval {
		return nil, fmt.Errorf("%w: record is %s", ErrAlreadyResolved, r.State)
	}

	r.Approval.ApproverID = approverID
	r.Approval.Reason = reason
	r.Approval.ResolvedAt = time.Now()
	e.transitionLocked(ctx, r, StateApproved, fmt.Sprintf("approved by %s", approverID))
	e.recordApprovalWait(ctx, r, "approved")
	e.publish(EventApproved, r)
	e.logger.Info("record approved",
		zap.String("record_id", id),
		zap.String("approver", approverID))

	e.startExecutionLocked(ctx, r)
	return r.clone(), nil
}

// Reject resolves a pending approval against execution.
func (e *engine) Reject(ctx context.Context, id, approverID, reason string) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "engine.reject")
	defer span.End()
	span.SetAttributes(attribute.String("record_id", id))

	if approverID == "" {
		return nil, fmt.Errorf("%w: approver id is required", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	r, ok := e.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.State != StatePendingApproval {
		return nil, fmt.Errorf("%w: record is %s", ErrAlreadyResolved, r.State)
	}

	r.Approval.ApproverID = approverID
	r.Approval.Reason = reason
	r.Approval.ResolvedAt = time.Now()
	if reason == "" {
		reason = fmt.Sprintf("rejected by %s", approverID)
	}
	e.transitionLocked(ctx, r, StateRejected, reason)
	e.recordApprovalWait(ctx, r, "rejected")
	e.finalizeLocked(ctx, r, EventRejected)
	e.logger.Info("record rejected",
		zap.String("record_id", id),
		zap.String("approver", approverID),
		zap.String("reason", reason))

	return r.clone(), nil
}

// Cancel stops an executing action, or withdraws a proposal still
// queued behind an active action on its target.
func (e *engine) Cancel(ctx context.Context, id, reason string) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "engine.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("record_id", id))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	r, ok := e.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.State.Terminal() {
		return nil, fmt.Errorf("%w: record is %s", ErrAlreadyResolved, r.State)
	}
	if r.State != StateExecuting && r.State != StateProposed {
		return nil, fmt.Errorf("%w: record is %s", ErrNotCancellable, r.State)
	}

	if reason == "" {
		reason = "cancelled by operator"
	}

	// A queued proposal never started executing; terminate it in place
	// and let queue promotion skip the dead entry.
	if r.State == StateProposed {
		e.transitionLocked(ctx, r, StateCancelled, reason)
		e.finalizeLocked(ctx, r, EventCancelled)
		e.logger.Info("queued proposal withdrawn",
			zap.String("record_id", id),
			zap.String("target", r.Proposal.Target))
		return r.clone(), nil
	}

	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
	r.Execution.FinishedAt = time.Now()
	r.Execution.Duration = r.Execution.FinishedAt.Sub(r.Execution.StartedAt)
	e.transitionLocked(ctx, r, StateCancelled, reason)
	e.finalizeLocked(ctx, r, EventCancelled)
	e.logger.Info("record cancelled; underlying operation may complete out-of-band",
		zap.String("record_id", id),
		zap.String("target", r.Proposal.Target))

	return r.clone(), nil
}

// Get returns a copy of one record.
func (e *engine) Get(ctx context.Context, id string) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

// PendingApprovals lists records awaiting a decision, oldest first.
func (e *engine) PendingApprovals(ctx context.Context) ([]*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Record
	for _, r := range e.records {
		if r.State == StatePendingApproval {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Approval.RequestedAt.Before(out[j].Approval.RequestedAt)
	})
	return out, nil
}

// Records lists all records, newest first.
func (e *engine) Records(ctx context.Context) ([]*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Record, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SubmitFeedback attaches operator judgment to a terminal record.
func (e *engine) SubmitFeedback(ctx context.Context, id string, rating int, helpful bool, comment string) error {
	ctx, span := e.tracer.Start(ctx, "engine.submit_feedback")
	defer span.End()
	span.SetAttributes(attribute.String("record_id", id))

	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	e.mu.Lock()
	r, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	if !r.State.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("%w: record is %s", ErrNotTerminal, r.State)
	}
	e.mu.Unlock()

	return e.learning.AttachFeedback(ctx, id, rating, helpful, comment)
}

// Insights returns aggregate learning statistics.
func (e *engine) Insights(ctx context.Context) (*learning.Insights, error) {
	return e.learning.Insights(ctx)
}

// Close stops the sweep, cancels in-flight executions, and waits for
// their goroutines to drain.
func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh

	e.execCancel()
	e.execWG.Wait()

	e.logger.Info("engine closed")
	return nil
}

// startExecutionLocked moves a record into executing and dispatches the
// executor on its own goroutine. Caller holds mu.
func (e *engine) startExecutionLocked(ctx context.Context, r *Record) {
	r.Execution.StartedAt = time.Now()
	e.transitionLocked(ctx, r, StateExecuting, "executing")
	e.publish(EventExecuting, r)

	execCtx, cancel := context.WithCancel(e.execCtx)
	e.cancels[r.ID] = cancel

	req := executor.Request{
		RecordID:          r.ID,
		Kind:              r.Proposal.Kind,
		Target:            r.Proposal.Target,
		Params:            r.Proposal.Params,
		EstimatedDuration: r.Proposal.EstimatedDuration,
		Tier:              r.Assessment.Tier,
	}

	e.execWG.Add(1)
	go func() {
		defer e.execWG.Done()
		defer cancel()

		out := e.exec.Execute(execCtx, req)
		e.finishExecution(r.ID, out)
	}()
}

// finishExecution applies an execution outcome. A record cancelled
// while the executor was running stays cancelled; the late outcome is
// only logged.
func (e *engine) finishExecution(id string, out executor.Outcome) {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return
	}
	if r.State != StateExecuting {
		e.logger.Info("execution finished after record left executing state, outcome discarded",
			zap.String("record_id", id),
			zap.String("state", string(r.State)))
		return
	}

	delete(e.cancels, id)

	r.Execution.FinishedAt = out.Finished
	r.Execution.Duration = out.Duration()
	r.Execution.Attempts = out.Attempts
	r.RollbackAvailable = out.RollbackAvailable

	switch {
	case out.Cancelled:
		e.transitionLocked(ctx, r, StateCancelled, "execution cancelled")
		e.finalizeLocked(ctx, r, EventCancelled)

	case out.Err != nil:
		r.Error = out.Err.Error()
		reason := "execution failed"
		if out.TimedOut {
			reason = "execution timed out"
		}
		e.transitionLocked(ctx, r, StateFailed, reason)
		e.finalizeLocked(ctx, r, EventFailed)
		e.logger.Warn("execution failed",
			zap.String("record_id", id),
			zap.String("kind", r.Proposal.Kind),
			zap.Bool("timed_out", out.TimedOut),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.Err))

	default:
		r.Result = out.Result
		e.transitionLocked(ctx, r, StateCompleted, "completed")
		e.finalizeLocked(ctx, r, EventCompleted)
		e.logger.Info("execution completed",
			zap.String("record_id", id),
			zap.String("kind", r.Proposal.Kind),
			zap.Duration("duration", r.Execution.Duration),
			zap.Int("attempts", out.Attempts))
	}
}

// finalizeLocked handles everything a terminal transition owes: the
// learning event, the outbound notification, persistence, and freeing
// the target for queued work. Caller holds mu; the record must already
// be terminal.
func (e *engine) finalizeLocked(ctx context.Context, r *Record, event string) {
	e.recordOutcomeLocked(ctx, r)
	e.saveLocked(ctx, r)
	e.publish(event, r)
	e.releaseTargetLocked(ctx, r)
}

// recordOutcomeLocked hands the terminal outcome to the learning store
// exactly once per record.
func (e *engine) recordOutcomeLocked(ctx context.Context, r *Record) {
	if r.LearningRecorded || !r.State.Terminal() {
		return
	}

	issueType := r.Proposal.Evidence.PatternType
	if issueType == "" {
		issueType = "operator_initiated"
	}

	duration := r.Execution.Duration
	if duration == 0 {
		duration = r.UpdatedAt.Sub(r.CreatedAt)
	}

	tag := outcomeTag(r.State)
	if r.State == StateFailed && r.Reason == blockedReason {
		tag = learning.TagBlocked
	}

	ev := &learning.Event{
		RecordID:           r.ID,
		ActionKind:         r.Proposal.Kind,
		IssueType:          issueType,
		Success:            r.State == StateCompleted,
		Tag:                tag,
		ResolutionDuration: duration,
	}

	// Record never returns a persistence error; failed writes are
	// retried inside the learning service.
	if err := e.learning.Record(ctx, ev); err != nil {
		e.logger.Error("failed to record learning event", zap.String("record_id", r.ID), zap.Error(err))
		return
	}
	r.LearningRecorded = true
}

// releaseTargetLocked frees the target held by a terminal record and
// promotes the oldest queued proposal for it, if any. Caller holds mu.
func (e *engine) releaseTargetLocked(ctx context.Context, r *Record) {
	target := r.Proposal.Target
	if e.active[target] != r.ID {
		return
	}
	delete(e.active, target)

	queue := e.waiting[target]
	for len(queue) > 0 {
		nextID := queue[0]
		queue = queue[1:]
		next, ok := e.records[nextID]
		if !ok || next.State != StateProposed {
			continue
		}

		e.waiting[target] = queue
		e.active[target] = nextID
		e.logger.Info("promoting queued proposal",
			zap.String("record_id", nextID),
			zap.String("target", target))
		// A blocked promotion terminates the record in place; the
		// recursion through finalize keeps draining the queue.
		if _, err := e.routeLocked(ctx, next, e.policy.Current()); err != nil && !errors.Is(err, ErrPolicyBlocked) {
			e.logger.Error("failed to promote queued proposal",
				zap.String("record_id", nextID), zap.Error(err))
		}
		return
	}
	if len(queue) == 0 {
		delete(e.waiting, target)
	}
}

// transitionLocked applies one state change, stamping reason and time.
func (e *engine) transitionLocked(ctx context.Context, r *Record, to State, reason string) {
	from := r.State
	r.State = to
	r.Reason = reason
	r.UpdatedAt = time.Now()

	if e.transitionCounter != nil {
		e.transitionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
	}

	// Non-terminal transitions persist here; terminal ones persist in
	// finalize after the learning flag settles.
	if !to.Terminal() {
		e.saveLocked(ctx, r)
	}
}

// saveLocked persists a record. The in-memory map stays authoritative;
// a store failure is logged and the transition proceeds.
func (e *engine) saveLocked(ctx context.Context, r *Record) {
	if err := e.store.Save(ctx, r.clone()); err != nil {
		e.logger.Error("failed to persist record",
			zap.String("record_id", r.ID),
			zap.String("state", string(r.State)),
			zap.Error(err))
	}
}

// publish emits a lifecycle event. Notifiers are contractually
// non-blocking.
func (e *engine) publish(event string, r *Record) {
	e.notifier.Publish(context.Background(), LifecycleEvent{
		Type:   event,
		Record: r.clone(),
		At:     time.Now(),
	})
}

// sweepLoop expires overdue approvals on a fixed cadence.
func (e *engine) sweepLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

// sweepExpired terminates every pending approval past its deadline.
func (e *engine) sweepExpired() {
	ctx := context.Background()
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.records {
		if r.State != StatePendingApproval || now.Before(r.Approval.Deadline) {
			continue
		}
		r.Approval.ResolvedAt = now
		e.transitionLocked(ctx, r, StateExpired, "approval deadline expired")
		e.recordApprovalWait(ctx, r, "expired")
		e.finalizeLocked(ctx, r, EventExpired)
		e.logger.Warn("approval expired",
			zap.String("record_id", r.ID),
			zap.String("kind", r.Proposal.Kind),
			zap.String("tier", string(r.Assessment.Tier)))
	}
}

// enrichEvidence fills pattern metadata from the registry when the
// proposal references a detected pattern.
func (e *engine) enrichEvidence(p *Proposal) {
	if e.patterns == nil || p.Evidence.PatternID == "" {
		return
	}
	pat := e.patterns.Get(p.Evidence.PatternID)
	if pat == nil {
		return
	}
	p.Evidence.PatternType = string(pat.Type)
	p.Evidence.PatternConfidence = pat.Confidence
}

func validateProposal(p Proposal) error {
	if p.Kind == "" {
		return fmt.Errorf("%w: action kind is required", ErrValidation)
	}
	if p.Target == "" {
		return fmt.Errorf("%w: target is required", ErrValidation)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if p.EstimatedDuration < 0 {
		return fmt.Errorf("%w: estimated duration cannot be negative", ErrValidation)
	}
	return nil
}

func outcomeTag(s State) string {
	switch s {
	case StateCompleted:
		return learning.TagCompleted
	case StateRejected:
		return learning.TagRejected
	case StateExpired:
		return learning.TagExpired
	case StateCancelled:
		return learning.TagCancelled
	default:
		return learning.TagFailed
	}
}
