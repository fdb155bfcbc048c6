// Package storage provides the Badger-backed persistence layer for
// action records and learning events. Badger is an embedded key-value
// store; values are JSON-encoded and keyed by type prefix so both
// stores share one database.
package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Config configures the embedded database.
type Config struct {
	// Path is the database directory, created if missing. Ignored when
	// InMemory is set.
	Path string `koanf:"path"`

	// InMemory drops persistence entirely; everything is lost on
	// close. Used by tests and by running without a data directory.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every write (default: true).
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval paces value-log garbage collection (default: 5m,
	// 0 disables).
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is the garbage fraction that triggers a value-log
	// rewrite (default: 0.5).
	GCDiscardRatio float64 `koanf:"gc_discard_ratio"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// DB wraps the Badger handle together with its GC loop.
type DB struct {
	db     *badger.DB
	logger *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens the database and starts garbage collection. A nil config
// uses defaults.
func Open(cfg *Config, logger *zap.Logger) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("database path is required unless in-memory")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(&badgerLogger{logger: logger.Named("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go d.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(d.doneCh)
	}

	return d, nil
}

// OpenInMemory opens an ephemeral database for tests.
func OpenInMemory(logger *zap.Logger) (*DB, error) {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	return Open(cfg, logger)
}

// gcLoop periodically rewrites the value log.
func (d *DB) gcLoop(interval time.Duration, ratio float64) {
	defer close(d.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := d.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.logger.Warn("value log gc failed", zap.Error(err))
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	close(d.stopCh)
	<-d.doneCh
	return d.db.Close()
}

// badgerLogger adapts zap to Badger's logger interface.
type badgerLogger struct {
	logger *zap.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
