package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Workflow contains worker pool sizing and timing.
type Workflow struct {
	WorkerCount         int `toml:"worker_count"`
	DequeueWaitMS       int `toml:"dequeue_wait_ms"`
	PollIntervalMS      int `toml:"poll_interval_ms"`
	ContentionDelayMS   int `toml:"contention_delay_ms"`
	DrainTimeoutSeconds int `toml:"drain_timeout_seconds"`
}

// Processing contains the simulated processing parameters.
type Processing struct {
	MinDelayMS  int     `toml:"min_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	SuccessRate float64 `toml:"success_rate"`
	// Seed fixes the random source when non-zero.
	Seed int64 `toml:"seed"`
}

// Queue selects the job queue backend.
type Queue struct {
	Backend                  string `toml:"backend"`
	VisibilityTimeoutSeconds int    `toml:"visibility_timeout_seconds"`
}

// Lock selects the per-photo lock backend.
type Lock struct {
	Backend    string `toml:"backend"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Cache selects the read cache backend. The Redis connection settings are
// shared with the redis lock and queue backends.
type Cache struct {
	Backend          string `toml:"backend"`
	RedisAddr        string `toml:"redis_addr"`
	RedisPassword    string `toml:"redis_password"`
	RedisDB          int    `toml:"redis_db"`
	ListTTLSeconds   int    `toml:"list_ttl_seconds"`
	DetailTTLSeconds int    `toml:"detail_ttl_seconds"`
}

// Events configures publication of appended events.
type Events struct {
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for photoflow.
//
// Configuration sections by subsystem:
//   - Paths: database and log directories
//   - Workflow: worker pool size and loop timing
//   - Processing: simulated processing delay and success rate
//   - Queue: job queue backend and visibility timeout
//   - Lock: per-photo lock backend and lease TTL
//   - Cache: read cache backend, Redis connection and TTLs
//   - Events: Kafka event publication
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Workflow   Workflow   `toml:"workflow"`
	Processing Processing `toml:"processing"`
	Queue      Queue      `toml:"queue"`
	Lock       Lock       `toml:"lock"`
	Cache      Cache      `toml:"cache"`
	Events     Events     `toml:"events"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("photoflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath returns the file used to enforce a single running daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "photoflow.lock")
}

// DequeueWait is how long a worker blocks waiting for a visible job.
func (c *Config) DequeueWait() time.Duration {
	return time.Duration(c.Workflow.DequeueWaitMS) * time.Millisecond
}

// PollInterval is how often a blocked dequeue re-checks durable storage.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalMS) * time.Millisecond
}

// ContentionDelay is how long a job stays hidden after its lock was contended.
func (c *Config) ContentionDelay() time.Duration {
	return time.Duration(c.Workflow.ContentionDelayMS) * time.Millisecond
}

// DrainTimeout bounds how long shutdown waits for in-flight jobs.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Workflow.DrainTimeoutSeconds) * time.Second
}

// MinDelay is the lower bound of simulated processing time.
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Processing.MinDelayMS) * time.Millisecond
}

// MaxDelay is the upper bound of simulated processing time.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Processing.MaxDelayMS) * time.Millisecond
}

// VisibilityTimeout is how long a dequeued job stays hidden before redelivery.
func (c *Config) VisibilityTimeout() time.Duration {
	return time.Duration(c.Queue.VisibilityTimeoutSeconds) * time.Second
}

// LockTTL is the lease duration of a per-photo processing lock.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

// ListTTL is the lifetime of cached list pages.
func (c *Config) ListTTL() time.Duration {
	return time.Duration(c.Cache.ListTTLSeconds) * time.Second
}

// DetailTTL is the lifetime of cached photo details.
func (c *Config) DetailTTL() time.Duration {
	return time.Duration(c.Cache.DetailTTLSeconds) * time.Second
}

// EventsEnabled reports whether appended events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.Events.KafkaBrokers) > 0
}

// NeedsRedis reports whether any configured backend connects to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == BackendRedis || c.Lock.Backend == BackendRedis || c.Queue.Backend == BackendRedis
}

// SharedQueue reports whether jobs enqueued by one process reach workers in
// another. The memory queue lives inside a single process.
func (c *Config) SharedQueue() bool {
	return c.Queue.Backend != BackendMemory
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
