package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

// PolicyWatcher hot-reloads the policy section of the config file into
// a risk.PolicyProvider. Only the policy takes effect at runtime;
// other sections require a restart and are ignored here.
type PolicyWatcher struct {
	path     string
	provider *risk.PolicyProvider
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPolicyWatcher starts watching the config file's directory.
// Watching the directory rather than the file survives the
// rename-and-replace dance editors and config managers do.
func NewPolicyWatcher(path string, provider *risk.PolicyProvider, logger *zap.Logger) (*PolicyWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("policy provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &PolicyWatcher{
		path:     path,
		provider: provider,
		watcher:  watcher,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// loop reacts to writes of the config file, debouncing bursts.
func (w *PolicyWatcher) loop() {
	defer close(w.doneCh)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(200 * time.Millisecond)
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// reload re-reads the file and swaps the policy. A broken file keeps
// the previous policy active.
func (w *PolicyWatcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping current policy",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	pol, err := cfg.RiskPolicy()
	if err != nil {
		w.logger.Error("reloaded policy is invalid, keeping current policy",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	if err := w.provider.Replace(pol); err != nil {
		w.logger.Error("failed to replace policy", zap.Error(err))
		return
	}
	w.logger.Info("policy reloaded", zap.String("path", w.path))
}

// Close stops the watcher.
func (w *PolicyWatcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}
