package capability

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/redact"
)

// Runbook maps an action kind to the command that performs it. The
// command runs with REMEDY_TARGET and REMEDY_PARAM_<name> in its
// environment; a non-zero exit is a failed action.
type Runbook struct {
	// Command is the argv to run, e.g. ["kubectl", "rollout", "restart"].
	Command []string `json:"command" koanf:"command"`

	// Rollback, when set, declares that the action can be undone.
	Rollback []string `json:"rollback" koanf:"rollback"`
}

// Runner executes runbooks for proposed actions. Captured output is
// scrubbed for credentials before it reaches the record store.
type Runner struct {
	runbooks map[string]Runbook
	scrubber *redact.Scrubber
	logger   *zap.Logger
}

// NewRunner creates a runbook capability. At least one runbook is
// required; use DryRun when none are configured.
func NewRunner(runbooks map[string]Runbook, logger *zap.Logger) (*Runner, error) {
	if len(runbooks) == 0 {
		return nil, fmt.Errorf("at least one runbook is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for kind, rb := range runbooks {
		if len(rb.Command) == 0 {
			return nil, fmt.Errorf("runbook %q has no command", kind)
		}
	}

	scrubber, err := redact.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build output scrubber: %w", err)
	}

	return &Runner{runbooks: runbooks, scrubber: scrubber, logger: logger}, nil
}

// Kinds returns the action kinds this runner can perform, sorted.
func (r *Runner) Kinds() []string {
	kinds := make([]string, 0, len(r.runbooks))
	for k := range r.runbooks {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Perform runs the runbook command for kind. Cancelling ctx kills the
// process.
func (r *Runner) Perform(ctx context.Context, kind, target string, params map[string]any) (map[string]any, error) {
	rb, ok := r.runbooks[kind]
	if !ok {
		return nil, fmt.Errorf("no runbook for action kind %q", kind)
	}

	cmd := exec.CommandContext(ctx, rb.Command[0], rb.Command[1:]...)
	cmd.Env = append(cmd.Environ(), actionEnv(target, params)...)

	r.logger.Info("running runbook",
		zap.String("kind", kind),
		zap.String("target", target),
		zap.String("command", strings.Join(rb.Command, " ")))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("runbook %q failed: %w", kind, err)
	}

	cleaned, redacted := r.scrubber.Scrub(truncateOutput(string(out)))
	if redacted > 0 {
		r.logger.Warn("redacted secrets from runbook output",
			zap.String("kind", kind),
			zap.Int("count", redacted))
	}
	return map[string]any{"output": cleaned}, nil
}

// SupportsRollback reports whether the kind's runbook declares a
// rollback command.
func (r *Runner) SupportsRollback(kind string) bool {
	rb, ok := r.runbooks[kind]
	return ok && len(rb.Rollback) > 0
}

// maxOutputBytes caps captured runbook output so a chatty command
// cannot bloat stored records.
const maxOutputBytes = 8 * 1024

func truncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... (truncated)"
}

func actionEnv(target string, params map[string]any) []string {
	env := []string{"REMEDY_TARGET=" + target}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := "REMEDY_PARAM_" + strings.ToUpper(sanitizeEnvKey(k))
		env = append(env, fmt.Sprintf("%s=%v", name, params[k]))
	}
	return env
}

func sanitizeEnvKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
