// Package capability provides executor.Capability implementations:
// a runbook runner that shells out to operator-declared commands, and
// a dry-run capability for environments with no runbooks configured.
package capability

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DryRun simulates every action without touching the target. It is
// the default capability when no runbooks are configured, so a fresh
// deployment can exercise the full proposal lifecycle safely.
type DryRun struct {
	logger *zap.Logger
}

// NewDryRun creates a dry-run capability.
func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{logger: logger}
}

// Perform logs the action and returns a simulated result.
func (d *DryRun) Perform(ctx context.Context, kind, target string, params map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.logger.Info("dry-run action",
		zap.String("kind", kind),
		zap.String("target", target))

	return map[string]any{
		"dry_run":   true,
		"kind":      kind,
		"target":    target,
		"performed": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SupportsRollback always reports true: a simulated action can always
// be simulated in reverse.
func (d *DryRun) SupportsRollback(string) bool { return true }
