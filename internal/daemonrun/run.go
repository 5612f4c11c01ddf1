package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"photoflow/internal/config"
	"photoflow/internal/daemon"
	"photoflow/internal/logging"
	"photoflow/internal/processing"
)

// PIDFileName is written under the data directory while the daemon runs.
const PIDFileName = "photoflow.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Processor replaces the configured simulator.
	Processor processing.Processor
}

// Run starts the photoflow daemon and blocks until cmdCtx ends or the process
// receives SIGINT or SIGTERM, then drains the workers and exits.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logBackendSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	backends, err := daemon.OpenBackends(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "open backends", "backends_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the data directory and Redis settings"),
		)
		return err
	}

	d, err := daemon.New(cfg, backends, opts.Processor, logger)
	if err != nil {
		_ = backends.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and database access"),
			logging.String(logging.FieldImpact, "no photos are processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("photoflow daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, PIDFileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func logBackendSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("backend snapshot",
		logging.String(logging.FieldEventType, "backend_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.Int("workers", cfg.Workflow.WorkerCount),
		logging.String("queue_backend", cfg.Queue.Backend),
		logging.String("lock_backend", cfg.Lock.Backend),
		logging.String("cache_backend", cfg.Cache.Backend),
		logging.Bool("events_enabled", cfg.EventsEnabled()),
		logging.Float64("success_rate", cfg.Processing.SuccessRate),
	)
}
