package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Disposition is what the policy decides for a given tier.
type Disposition string

const (
	// DispositionAutoApprove lets the action execute without a human.
	DispositionAutoApprove Disposition = "auto_approve"
	// DispositionRequireApproval holds the action for human sign-off.
	DispositionRequireApproval Disposition = "require_approval"
	// DispositionBlock refuses the action outright.
	DispositionBlock Disposition = "block"
)

// TargetBusyMode decides what happens when a proposal arrives for a
// target that already has an active action.
type TargetBusyMode string

const (
	// TargetBusyReject fails the second proposal with a target-busy error.
	TargetBusyReject TargetBusyMode = "reject"
	// TargetBusyQueue holds the second proposal until the target frees up.
	TargetBusyQueue TargetBusyMode = "queue"
)

// Policy is the declarative risk-tier-to-disposition table together
// with per-tier approval deadlines and the target-busy behavior.
type Policy struct {
	// Dispositions maps each tier to its disposition. Missing tiers
	// default to require-approval.
	Dispositions map[Tier]Disposition `json:"dispositions" koanf:"dispositions"`

	// ApprovalTimeouts maps each tier to how long a pending approval
	// waits before expiring.
	ApprovalTimeouts map[Tier]time.Duration `json:"approval_timeouts" koanf:"approval_timeouts"`

	// TargetBusy selects queue-or-reject for concurrent proposals
	// against the same target.
	TargetBusy TargetBusyMode `json:"target_busy" koanf:"target_busy"`
}

// DefaultPolicy returns the default disposition table: SAFE and LOW
// auto-approve, MEDIUM and HIGH require approval (5 minute deadline),
// CRITICAL requires approval with a tighter 2 minute deadline.
func DefaultPolicy() *Policy {
	return &Policy{
		Dispositions: map[Tier]Disposition{
			TierSafe:     DispositionAutoApprove,
			TierLow:      DispositionAutoApprove,
			TierMedium:   DispositionRequireApproval,
			TierHigh:     DispositionRequireApproval,
			TierCritical: DispositionRequireApproval,
		},
		ApprovalTimeouts: map[Tier]time.Duration{
			TierMedium:   5 * time.Minute,
			TierHigh:     5 * time.Minute,
			TierCritical: 2 * time.Minute,
		},
		TargetBusy: TargetBusyReject,
	}
}

// Validate checks the policy for internally consistent values.
func (p *Policy) Validate() error {
	for tier, d := range p.Dispositions {
		switch d {
		case DispositionAutoApprove, DispositionRequireApproval, DispositionBlock:
		default:
			return fmt.Errorf("invalid disposition %q for tier %s", d, tier)
		}
	}
	// CRITICAL must never silently auto-approve.
	if p.Dispositions[TierCritical] == DispositionAutoApprove {
		return fmt.Errorf("critical tier cannot be auto-approved")
	}
	for tier, d := range p.ApprovalTimeouts {
		if d <= 0 {
			return fmt.Errorf("approval timeout for tier %s must be positive", tier)
		}
	}
	switch p.TargetBusy {
	case TargetBusyReject, TargetBusyQueue, "":
	default:
		return fmt.Errorf("invalid target busy mode %q", p.TargetBusy)
	}
	return nil
}

// DispositionFor returns the disposition for a tier, defaulting to
// require-approval for tiers without an entry.
func (p *Policy) DispositionFor(tier Tier) Disposition {
	if d, ok := p.Dispositions[tier]; ok {
		return d
	}
	return DispositionRequireApproval
}

// ApprovalTimeoutFor returns the pending-approval deadline for a tier.
// Tiers without an entry get 5 minutes.
func (p *Policy) ApprovalTimeoutFor(tier Tier) time.Duration {
	if d, ok := p.ApprovalTimeouts[tier]; ok {
		return d
	}
	return 5 * time.Minute
}

// PolicyProvider holds the active policy and supports atomic
// replacement for hot reload. Readers never block writers.
type PolicyProvider struct {
	current atomic.Pointer[Policy]
}

// NewPolicyProvider creates a provider seeded with the given policy.
// A nil policy seeds the default table.
func NewPolicyProvider(p *Policy) *PolicyProvider {
	if p == nil {
		p = DefaultPolicy()
	}
	pp := &PolicyProvider{}
	pp.current.Store(p)
	return pp
}

// Current returns the active policy.
func (pp *PolicyProvider) Current() *Policy {
	return pp.current.Load()
}

// Replace swaps in a new policy after validating it.
func (pp *PolicyProvider) Replace(p *Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	pp.current.Store(p)
	return nil
}
