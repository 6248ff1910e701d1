// Package daemon wires the framerand subsystems together: store, episode
// library, startup recovery, clip production, the pregeneration queue, the
// cleanup loop, and the HTTP API. It enforces single-instance execution with
// a file lock in the state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"framerand/internal/api"
	"framerand/internal/cleanup"
	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/preflight"
	"framerand/internal/producer"
	"framerand/internal/queue"
	"framerand/internal/recovery"
	"framerand/internal/resource"
	"framerand/internal/run"
	"framerand/internal/store"
)

// Options configures daemon runtime behavior.
type Options struct {
	// SkipPreflight bypasses the environment checks, used by tests.
	SkipPreflight bool
}

// ErrPreflight indicates the environment checks failed.
var ErrPreflight = errors.New("preflight checks failed")

// Run starts the framerand daemon and blocks until the context is cancelled
// or a delivered SIGINT/SIGTERM shuts it down.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "framerand.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another framerand instance is already running (lock %s)", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release daemon lock", logging.Error(err))
		}
	}()

	pidPath := filepath.Join(cfg.Paths.StateDir, "framerand.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if !opts.SkipPreflight {
		if err := runPreflight(cfg, logger); err != nil {
			return err
		}
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "framerand*.log"},
	)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer st.Close()

	registry := resource.NewRegistry(cfg)
	svc := resource.NewService(cfg, st, registry, logger)

	library, err := media.LoadLibrary(signalCtx, cfg, st, logger)
	if err != nil {
		logger.Error("load episode library", logging.Error(err))
		return err
	}

	recovered := recovery.Run(signalCtx, svc, cfg.Paths.OutputDir, logger)

	prod, err := producer.New(cfg, library, registry, st, logger)
	if err != nil {
		return fmt.Errorf("init producer: %w", err)
	}

	tracker, err := run.NewTracker(cfg, st, prod.NewID, logger)
	if err != nil {
		return fmt.Errorf("init run tracker: %w", err)
	}

	sources := make(map[string]queue.KindSource)
	var order []string
	for _, kind := range registry.All() {
		name := kind.Name
		sources[name] = queue.KindSource{
			Produce: func(ctx context.Context) (string, error) {
				return prod.Produce(ctx, name)
			},
			Preproduced: recovered.PreproducedByKind[name],
		}
		order = append(order, name)
	}
	q := queue.New(sources, order, queueOptions(cfg), logger)
	q.Start(signalCtx)
	defer q.Close()

	cleaner := cleanup.NewDaemon(cfg, st, svc, logger)
	cleaner.Start(signalCtx)

	server := api.NewServer(cfg, library, svc, q, tracker, logger)
	if err := server.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server", logging.Error(err))
		return err
	}
	logger.Info("framerand daemon shutting down")
	return nil
}

func runPreflight(cfg *config.Config, logger *slog.Logger) error {
	failed := false
	for _, result := range preflight.RunAll(cfg) {
		if result.Passed {
			logger.Info("preflight check passed", logging.String("check", result.Name), logging.String("detail", result.Detail))
			continue
		}
		failed = true
		logger.Error("preflight check failed", logging.String("check", result.Name), logging.String("detail", result.Detail))
	}
	if !cfg.Library.PreflightSkipBinaries {
		for _, status := range preflight.SystemDeps(cfg) {
			if status.Available {
				continue
			}
			failed = true
			logger.Error("missing external binary",
				logging.String("name", status.Name),
				logging.String("detail", status.Detail),
			)
		}
	}
	if failed {
		return ErrPreflight
	}
	return nil
}

func queueOptions(cfg *config.Config) queue.Options {
	return queue.Options{
		TotalLength:         cfg.Queue.TotalLength,
		PerKindMinimum:      cfg.Queue.PerKindMinimum,
		MaxPending:          cfg.Queue.MaxPending,
		MaxRetries:          cfg.Queue.MaxRetries,
		ExhaustionTopUp:     cfg.Queue.ExhaustionTopUp,
		AttemptTimeout:      time.Duration(cfg.Producer.AttemptTimeoutSeconds) * time.Second,
		MaintenanceInterval: time.Duration(cfg.Queue.MaintenanceIntervalSeconds) * time.Second,
	}
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
