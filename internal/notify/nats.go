// Package notify publishes record lifecycle events to NATS so external
// consumers (dashboards, pagers, audit pipelines) can follow the
// remediation flow without polling the API.
//
// Events are published to subjects of the form:
//
//	remediation.{target}.{record_id}.{event}
//
// e.g. remediation.api-gateway.3f2c...e1.approval_required. Delivery is
// fire-and-forget: a publish failure is logged and never blocks a
// state transition.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/engine"
)

// SubjectPrefix is the root of all lifecycle subjects.
const SubjectPrefix = "remediation"

// NATSNotifier implements engine.Notifier over a NATS connection.
type NATSNotifier struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSNotifier creates a notifier over an established connection.
func NewNATSNotifier(nc *nats.Conn, logger *zap.Logger) (*NATSNotifier, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{nc: nc, logger: logger}, nil
}

// Publish sends one lifecycle event. Failures are logged, never
// returned: notification is advisory and the engine must not stall on
// a broker hiccup.
func (n *NATSNotifier) Publish(ctx context.Context, event engine.LifecycleEvent) {
	subject := Subject(event.Record.Proposal.Target, event.Record.ID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal lifecycle event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	if err := n.nc.Publish(subject, data); err != nil {
		n.logger.Warn("failed to publish lifecycle event",
			zap.String("subject", subject),
			zap.String("record_id", event.Record.ID),
			zap.Error(err))
	}
}

// Subject builds the lifecycle subject for a target, record, and event
// type. Token separators in the target are flattened so they cannot
// split the subject.
func Subject(target, recordID, event string) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, sanitizeToken(target), recordID, event)
}

// sanitizeToken makes an arbitrary identifier safe as a single NATS
// subject token.
func sanitizeToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '-'
		}
		return r
	}, s)
}
