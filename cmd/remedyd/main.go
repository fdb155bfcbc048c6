// Remedyd is the remediation orchestration daemon.
//
// This binary starts the remedyd HTTP server with full service
// initialization: embedded storage, the learning service, the risk
// classifier and policy, the executor, the pattern detector, and
// optional NATS lifecycle notifications.
//
// Configuration is loaded from a YAML file (optional) with environment
// overrides. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults (in-memory storage, dry-run executor)
//	remedyd
//
//	# Start with a config file
//	remedyd -config /etc/remedyd/config.yaml
//
//	# Configure via environment
//	REMEDYD_SERVER_HTTP_PORT=9090 REMEDYD_STORAGE_PATH=/var/lib/remedyd remedyd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/capability"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/engine"
	"github.com/fyrsmithlabs/remedyd/internal/executor"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
	"github.com/fyrsmithlabs/remedyd/internal/notify"
	"github.com/fyrsmithlabs/remedyd/internal/pattern"
	"github.com/fyrsmithlabs/remedyd/internal/risk"
	"github.com/fyrsmithlabs/remedyd/internal/services"
	"github.com/fyrsmithlabs/remedyd/internal/storage"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
	"github.com/fyrsmithlabs/remedyd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  remedyd            Start the remediation daemon\n")
			fmt.Fprintf(os.Stderr, "  remedyd version    Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("remedyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the remedyd server and blocks until context is cancelled.
//
// Initialization order matters: storage before learning (the event
// store lives in Badger), learning and the executor before the engine,
// and the engine before the HTTP server. Shutdown runs in reverse.
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting remedyd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Bool("in_memory_storage", cfg.Storage.InMemory))

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Observability.EnableTelemetry,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("persistent_storage", !cfg.Storage.InMemory),
		zap.Strings("runbook_kinds", deps.runbookKinds))

	svcs, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svcs.Close(logger)

	logger.Info("Services initialized",
		zap.Bool("pattern_detection", svcs.scheduler != nil),
		zap.Bool("policy_watcher", svcs.watcher != nil))

	registry := services.NewRegistry(services.Options{
		Engine:       svcs.engine,
		Learning:     svcs.learning,
		Patterns:     svcs.patterns,
		Policy:       svcs.policy,
		Observations: svcs.source,
	})

	srv, err := server.NewServer(&server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		ServiceName:     cfg.Observability.ServiceName,
	}, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	// Start server (blocks until context cancellation)
	return srv.Start(ctx)
}

// dependencies holds infrastructure resources.
type dependencies struct {
	db           *storage.DB
	natsConn     *nats.Conn
	cap          executor.Capability
	runbookKinds []string
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Observability.EnableTelemetry {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// initDependencies opens storage, connects to NATS when enabled, and
// builds the executor capability from configured runbooks.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Storage.InMemory {
		db, err := storage.OpenInMemory(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory storage: %w", err)
		}
		deps.db = db
	} else {
		db, err := storage.Open(&storage.Config{
			Path:       cfg.Storage.Path,
			SyncWrites: cfg.Storage.SyncWrites,
			GCInterval: cfg.Storage.GCInterval.Duration(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage at %s: %w", cfg.Storage.Path, err)
		}
		deps.db = db
	}

	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		deps.natsConn = nc
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	if len(cfg.Executor.Runbooks) > 0 {
		runner, err := capability.NewRunner(cfg.Executor.Runbooks, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to build runbook capability: %w", err)
		}
		deps.cap = runner
		deps.runbookKinds = runner.Kinds()
	} else {
		logger.Warn("No runbooks configured; actions run in dry-run mode")
		deps.cap = capability.NewDryRun(logger)
	}

	return deps, nil
}

// daemonServices holds the business services and their background
// loops.
type daemonServices struct {
	engine    engine.Service
	learning  learning.Service
	patterns  *pattern.Registry
	policy    *risk.PolicyProvider
	source    *pattern.MemorySource
	scheduler *pattern.Scheduler
	watcher   *config.PolicyWatcher
}

// Close stops background loops and services in dependency order: the
// engine first so no execution outcome arrives at a closed learning
// service.
func (s *daemonServices) Close(logger *zap.Logger) {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logger.Warn("Engine close failed", zap.Error(err))
		}
	}
	if s.learning != nil {
		_ = s.learning.Close()
	}
}

// initServices wires the full service graph.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*daemonServices, error) {
	svcs := &daemonServices{}

	learningSvc, err := learning.NewService(&learning.Config{
		RetryInterval:     cfg.Learning.RetryInterval.Duration(),
		MaxPending:        cfg.Learning.MaxPending,
		MinSamplesForBest: cfg.Learning.MinSamplesForBest,
	}, storage.NewEventStore(deps.db), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create learning service: %w", err)
	}
	svcs.learning = learningSvc

	exec, err := executor.New(&executor.Config{
		TimeoutFloor: cfg.Executor.TimeoutFloor.Duration(),
		MaxRetries:   cfg.Executor.MaxRetries,
	}, deps.cap, logger)
	if err != nil {
		svcs.Close(logger)
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	classifier := risk.NewClassifier(&risk.Config{
		HistoryAdjustmentBound: cfg.Risk.HistoryAdjustmentBound,
		MinHistorySamples:      cfg.Risk.MinHistorySamples,
	})

	policy, err := cfg.RiskPolicy()
	if err != nil {
		svcs.Close(logger)
		return nil, err
	}
	svcs.policy = risk.NewPolicyProvider(policy)

	svcs.patterns = pattern.NewRegistry()

	// Failure observations for the detector come from the engine's own
	// lifecycle events; metric samples arrive over the observations API.
	source := pattern.NewMemorySource(0)
	svcs.source = source
	notifiers := notify.Fanout{notify.NewPatternFeed(source)}
	if deps.natsConn != nil {
		nn, err := notify.NewNATSNotifier(deps.natsConn, logger)
		if err != nil {
			svcs.Close(logger)
			return nil, fmt.Errorf("failed to create NATS notifier: %w", err)
		}
		notifiers = append(notifiers, nn)
	}

	eng, err := engine.New(&engine.Config{
		SweepInterval: cfg.Engine.SweepInterval.Duration(),
	}, engine.Deps{
		Classifier: classifier,
		Policy:     svcs.policy,
		Executor:   exec,
		Learning:   learningSvc,
		Store:      storage.NewRecordStore(deps.db),
		Patterns:   svcs.patterns,
		Notifier:   notifiers,
	}, logger)
	if err != nil {
		svcs.Close(logger)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	svcs.engine = eng

	if cfg.Pattern.Enabled {
		pcfg := pattern.DefaultConfig()
		pcfg.MinFailures = cfg.Pattern.MinFailures
		pcfg.MaxIntervalCV = cfg.Pattern.MaxIntervalCV
		pcfg.MinTrendSamples = cfg.Pattern.MinTrendSamples
		pcfg.DefaultSlopeThreshold = cfg.Pattern.DefaultSlopeThreshold
		detector := pattern.NewDetector(pcfg)
		scheduler, err := pattern.NewScheduler(detector, source, svcs.patterns, logger,
			pattern.WithInterval(cfg.Pattern.AnalysisInterval.Duration()))
		if err != nil {
			svcs.Close(logger)
			return nil, fmt.Errorf("failed to create pattern scheduler: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			svcs.Close(logger)
			return nil, fmt.Errorf("failed to start pattern scheduler: %w", err)
		}
		svcs.scheduler = scheduler
	}

	if path := cfg.SourcePath(); path != "" {
		watcher, err := config.NewPolicyWatcher(path, svcs.policy, logger)
		if err != nil {
			logger.Warn("Policy watcher unavailable; config changes require restart",
				zap.Error(err))
		} else {
			svcs.watcher = watcher
		}
	}

	return svcs, nil
}
