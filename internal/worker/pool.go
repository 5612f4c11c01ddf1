package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"photoflow/internal/config"
	"photoflow/internal/jobqueue"
	"photoflow/internal/lock"
	"photoflow/internal/logging"
	"photoflow/internal/processing"
	"photoflow/internal/workflow"
)

// Settings controls pool sizing and timing.
type Settings struct {
	Workers         int
	DequeueWait     time.Duration
	ContentionDelay time.Duration
	ErrorBackoff    time.Duration
	LockTTL         time.Duration
	DrainTimeout    time.Duration
}

// SettingsFromConfig reads the [workflow] and [lock] sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Workers:         cfg.Workflow.WorkerCount,
		DequeueWait:     cfg.DequeueWait(),
		ContentionDelay: cfg.ContentionDelay(),
		ErrorBackoff:    cfg.PollInterval(),
		LockTTL:         cfg.LockTTL(),
		DrainTimeout:    cfg.DrainTimeout(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.DequeueWait <= 0 {
		s.DequeueWait = time.Second
	}
	if s.ErrorBackoff <= 0 {
		s.ErrorBackoff = 200 * time.Millisecond
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 30 * time.Second
	}
	if s.DrainTimeout <= 0 {
		s.DrainTimeout = 30 * time.Second
	}
	return s
}

// Counters is a snapshot of pool activity since Start.
type Counters struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Contended int64 `json:"contended"`
	Skipped   int64 `json:"skipped"`
	Errors    int64 `json:"errors"`
}

// Pool runs a fixed number of workers, each pulling jobs independently.
type Pool struct {
	engine    *workflow.Engine
	queue     jobqueue.Queue
	locker    lock.Locker
	processor processing.Processor
	settings  Settings
	logger    *slog.Logger

	completed atomic.Int64
	failed    atomic.Int64
	contended atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64

	mu         sync.Mutex
	running    bool
	stopLoops  context.CancelFunc
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
}

// NewPool builds a pool. Call Start to launch the workers.
func NewPool(engine *workflow.Engine, queue jobqueue.Queue, locker lock.Locker, processor processing.Processor, settings Settings, logger *slog.Logger) *Pool {
	return &Pool{
		engine:    engine,
		queue:     queue,
		locker:    locker,
		processor: processor,
		settings:  settings.withDefaults(),
		logger:    logging.NewComponentLogger(logger, "worker"),
	}
}

// Start launches the workers. Loops stop when ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	// In-flight jobs outlive the loop context so Stop can drain them.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	p.stopLoops = stopLoops
	p.cancelJobs = cancelJobs
	p.running = true

	p.wg.Add(p.settings.Workers)
	for i := 1; i <= p.settings.Workers; i++ {
		go p.run(loopCtx, jobCtx, i)
	}
	p.logger.Info("worker pool started",
		logging.Int("workers", p.settings.Workers),
		logging.String("queue", jobqueue.Name),
		logging.String(logging.FieldEventType, "pool_started"),
	)
	return nil
}

// Stop stops taking new jobs and waits for in-flight jobs to finish. Jobs
// still running after the drain timeout are cancelled; their deliveries stay
// unacknowledged and are redelivered after the visibility timeout.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stopLoops, cancelJobs := p.stopLoops, p.cancelJobs
	p.running = false
	p.stopLoops, p.cancelJobs = nil, nil
	p.mu.Unlock()

	stopLoops()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.settings.DrainTimeout):
		logging.WarnWithContext(p.logger, "drain timeout reached; cancelling in-flight jobs", "pool_drain_timeout",
			logging.Duration("drain_timeout", p.settings.DrainTimeout),
			logging.String(logging.FieldErrorHint, "raise workflow.drain_timeout_seconds if processing runs long"),
			logging.String(logging.FieldImpact, "interrupted photos resume after the visibility timeout"),
		)
		cancelJobs()
		<-done
	}
	cancelJobs()
	p.logger.Info("worker pool stopped", logging.String(logging.FieldEventType, "pool_stopped"))
}

// Running reports whether the pool has been started and not stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Counters returns the activity counters.
func (p *Pool) Counters() Counters {
	return Counters{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Contended: p.contended.Load(),
		Skipped:   p.skipped.Load(),
		Errors:    p.errored.Load(),
	}
}

func (p *Pool) run(loopCtx, jobCtx context.Context, workerID int) {
	defer p.wg.Done()
	logger := logging.WithContext(logging.WithWorkerID(loopCtx, workerID), p.logger)
	logger.Debug("worker started")
	for {
		if loopCtx.Err() != nil {
			logger.Debug("worker stopped")
			return
		}
		result, err := p.processNext(loopCtx, jobCtx, workerID)
		p.count(result)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		p.errored.Add(1)
		select {
		case <-loopCtx.Done():
		case <-time.After(p.settings.ErrorBackoff):
		}
	}
}

func (p *Pool) count(result Result) {
	switch result {
	case ResultCompleted:
		p.completed.Add(1)
	case ResultFailed:
		p.failed.Add(1)
	case ResultContended:
		p.contended.Add(1)
	case ResultSkipped:
		p.skipped.Add(1)
	}
}
