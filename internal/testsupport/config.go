package testsupport

import (
	"path/filepath"
	"testing"

	"photoflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Processing is instant and always succeeds, and worker timings are short so
// end-to-end tests finish quickly. Apply options to change any of it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Workflow.WorkerCount = 2
	cfgVal.Workflow.DequeueWaitMS = 50
	cfgVal.Workflow.PollIntervalMS = 5
	cfgVal.Workflow.ContentionDelayMS = 10
	cfgVal.Workflow.DrainTimeoutSeconds = 5
	cfgVal.Processing.MinDelayMS = 0
	cfgVal.Processing.MaxDelayMS = 0
	cfgVal.Processing.SuccessRate = 1
	cfgVal.Processing.Seed = 1
	cfgVal.Cache.Backend = config.BackendMemory

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithSuccessRate sets the simulated processing success probability.
func WithSuccessRate(rate float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.SuccessRate = rate
	}
}

// WithDelays sets the simulated processing delay bounds in milliseconds.
func WithDelays(minMS, maxMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.MinDelayMS = minMS
		b.cfg.Processing.MaxDelayMS = maxMS
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.WorkerCount = count
	}
}

// WithBackends selects the queue, lock and cache backends.
func WithBackends(queue, lock, cache string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = queue
		b.cfg.Lock.Backend = lock
		b.cfg.Cache.Backend = cache
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
