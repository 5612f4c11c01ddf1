package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"photoflow/internal/config"
	"photoflow/internal/logging"
	"photoflow/internal/preflight"
	"photoflow/internal/processing"
	"photoflow/internal/workflow"
	"photoflow/internal/worker"
)

// Daemon coordinates the worker pool and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	backends *Backends
	pool     *worker.Pool

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workers      int
	Counters     worker.Counters
	Stats        workflow.Stats
	Health       workflow.Health
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon over already opened backends. A nil processor uses
// the simulator configured in cfg.
func New(cfg *config.Config, backends *Backends, processor processing.Processor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || backends == nil || backends.Engine == nil {
		return nil, errors.New("daemon requires config and backends")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if processor == nil {
		processor = processing.NewFromConfig(cfg)
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		backends: backends,
		pool: worker.NewPool(backends.Engine, backends.Queue, backends.Locker, processor,
			worker.SettingsFromConfig(cfg), logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs preflight checks, re-enqueues photos
// left without a job and launches the workers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another photoflow daemon instance is already running")
	}

	if err := d.checkDependencies(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if _, err := d.backends.Engine.ReconcileQueued(ctx); err != nil {
		logging.WarnWithContext(d.logger, "startup reconciliation incomplete", "reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run photoflow queue reconcile once backends recover"),
		)
	}

	if err := d.pool.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker pool: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("photoflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue_backend", d.cfg.Queue.Backend),
		logging.String("lock_backend", d.cfg.Lock.Backend),
		logging.String("cache_backend", d.cfg.Cache.Backend),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// checkDependencies fails on unusable directories. Unreachable optional
// backends were already rejected when the backends were opened, so their
// failures here are only logged.
func (d *Daemon) checkDependencies(ctx context.Context) error {
	var fatal []string
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		if strings.HasSuffix(result.Name, "directory") {
			fatal = append(fatal, fmt.Sprintf("%s: %s", result.Name, result.Detail))
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "the daemon runs with degraded dependencies"),
		)
	}
	if len(fatal) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(fatal, "; "))
	}
	return nil
}

// Stop drains the worker pool and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("photoflow daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close stops the daemon and releases the backends.
func (d *Daemon) Close() error {
	d.Stop()
	return d.backends.Close()
}

// Status reports the pool state together with workflow counts and health.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workers:      d.cfg.Workflow.WorkerCount,
		Counters:     d.pool.Counters(),
		Health:       d.backends.Engine.HealthCheck(ctx),
		LockFilePath: d.lockPath,
	}
	if d.backends.DB != nil {
		status.DatabasePath = d.backends.DB.Path()
	}
	if stats, err := d.backends.Engine.Stats(ctx); err == nil {
		status.Stats = stats
	}
	return status
}
