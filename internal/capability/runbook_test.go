package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil, zap.NewNop())
	require.Error(t, err)

	_, err = NewRunner(map[string]Runbook{"restart": {}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")
}

func TestRunner_Perform(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"echo-target": {Command: []string{"sh", "-c", "echo target=$REMEDY_TARGET replicas=$REMEDY_PARAM_REPLICAS"}},
	}, zap.NewNop())
	require.NoError(t, err)

	result, err := r.Perform(context.Background(), "echo-target", "api-gateway", map[string]any{"replicas": 3})
	require.NoError(t, err)

	out, _ := result["output"].(string)
	assert.Contains(t, out, "target=api-gateway")
	assert.Contains(t, out, "replicas=3")
}

func TestRunner_PerformScrubsSecrets(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"leaky": {Command: []string{"sh", "-c", "echo password=supersecretvalue"}},
	}, zap.NewNop())
	require.NoError(t, err)

	result, err := r.Perform(context.Background(), "leaky", "db", nil)
	require.NoError(t, err)

	out, _ := result["output"].(string)
	assert.NotContains(t, out, "supersecretvalue")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRunner_PerformUnknownKind(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"restart": {Command: []string{"true"}},
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = r.Perform(context.Background(), "scale", "api", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runbook")
}

func TestRunner_PerformFailure(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"always-fails": {Command: []string{"false"}},
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = r.Perform(context.Background(), "always-fails", "api", nil)
	require.Error(t, err)
}

func TestRunner_CancelKillsProcess(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"slow": {Command: []string{"sleep", "30"}},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = r.Perform(ctx, "slow", "api", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_SupportsRollback(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"with-rollback":    {Command: []string{"true"}, Rollback: []string{"true"}},
		"without-rollback": {Command: []string{"true"}},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, r.SupportsRollback("with-rollback"))
	assert.False(t, r.SupportsRollback("without-rollback"))
	assert.False(t, r.SupportsRollback("unknown"))
}

func TestRunner_Kinds(t *testing.T) {
	r, err := NewRunner(map[string]Runbook{
		"b-kind": {Command: []string{"true"}},
		"a-kind": {Command: []string{"true"}},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{"a-kind", "b-kind"}, r.Kinds())
}

func TestDryRun_Perform(t *testing.T) {
	d := NewDryRun(zap.NewNop())

	result, err := d.Perform(context.Background(), "restart-component", "api", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result["dry_run"])
	assert.True(t, d.SupportsRollback("anything"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Perform(ctx, "restart-component", "api", nil)
	require.Error(t, err)
}
