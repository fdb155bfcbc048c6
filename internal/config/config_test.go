package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8484, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "remedyd", cfg.Observability.ServiceName)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval.Duration())
	assert.Equal(t, 30*time.Second, cfg.Executor.TimeoutFloor.Duration())
	assert.Equal(t, 1, cfg.Executor.MaxRetries)
	assert.Equal(t, 0.15, cfg.Risk.HistoryAdjustmentBound)
	// Without a data directory the store falls back to in-memory.
	assert.True(t, cfg.Storage.InMemory)
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
  shutdown_timeout: 5s
storage:
  path: /var/lib/remedyd
engine:
  sweep_interval: 10s
policy:
  target_busy: queue
  dispositions:
    MEDIUM: auto_approve
  approval_timeouts:
    CRITICAL: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "/var/lib/remedyd", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Engine.SweepInterval.Duration())

	pol, err := cfg.RiskPolicy()
	require.NoError(t, err)
	assert.Equal(t, risk.TargetBusyQueue, pol.TargetBusy)
	assert.Equal(t, risk.DispositionAutoApprove, pol.DispositionFor(risk.TierMedium))
	assert.Equal(t, 90*time.Second, pol.ApprovalTimeoutFor(risk.TierCritical))
	// Untouched tiers keep their defaults.
	assert.Equal(t, risk.DispositionRequireApproval, pol.DispositionFor(risk.TierHigh))
	assert.Equal(t, 5*time.Minute, pol.ApprovalTimeoutFor(risk.TierHigh))
}

func TestLoad_Runbooks(t *testing.T) {
	path := writeConfig(t, `
executor:
  runbooks:
    restart-component:
      command: ["systemctl", "restart"]
      rollback: ["systemctl", "start"]
    clear-cache:
      command: ["sh", "-c", "redis-cli flushdb"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Executor.Runbooks, 2)
	assert.Equal(t, []string{"systemctl", "restart"}, cfg.Executor.Runbooks["restart-component"].Command)
	assert.NotEmpty(t, cfg.Executor.Runbooks["restart-component"].Rollback)
	assert.Empty(t, cfg.Executor.Runbooks["clear-cache"].Rollback)
}

func TestLoad_RejectsRunbookWithoutCommand(t *testing.T) {
	path := writeConfig(t, `
executor:
  runbooks:
    restart-component:
      rollback: ["systemctl", "start"]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9000\n")

	t.Setenv("REMEDYD_SERVER_HTTP_PORT", "7777")
	t.Setenv("REMEDYD_STORAGE_PATH", "/tmp/remedyd-data")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "/tmp/remedyd-data", cfg.Storage.Path)
}

func TestLoad_RejectsCriticalAutoApprove(t *testing.T) {
	path := writeConfig(t, `
policy:
  dispositions:
    CRITICAL: auto_approve
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critical")
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [broken")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPolicyWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "policy:\n  target_busy: reject\n")

	provider := risk.NewPolicyProvider(nil)
	watcher, err := NewPolicyWatcher(path, provider, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  target_busy: queue\n"), 0o600))

	require.Eventually(t, func() bool {
		return provider.Current().TargetBusy == risk.TargetBusyQueue
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPolicyWatcher_KeepsPolicyOnBadReload(t *testing.T) {
	path := writeConfig(t, "policy:\n  target_busy: queue\n")

	pol := risk.DefaultPolicy()
	pol.TargetBusy = risk.TargetBusyQueue
	provider := risk.NewPolicyProvider(pol)

	watcher, err := NewPolicyWatcher(path, provider, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  dispositions:\n    CRITICAL: auto_approve\n"), 0o600))

	// The invalid policy never lands.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, risk.TargetBusyQueue, provider.Current().TargetBusy)
}
