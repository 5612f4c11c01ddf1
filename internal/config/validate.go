package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateLeases(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":            c.Workflow.WorkerCount,
		"workflow.dequeue_wait_ms":         c.Workflow.DequeueWaitMS,
		"workflow.poll_interval_ms":        c.Workflow.PollIntervalMS,
		"workflow.drain_timeout_seconds":   c.Workflow.DrainTimeoutSeconds,
		"queue.visibility_timeout_seconds": c.Queue.VisibilityTimeoutSeconds,
		"lock.ttl_seconds":                 c.Lock.TTLSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.ContentionDelayMS < 0 {
		return errors.New("workflow.contention_delay_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.MinDelayMS < 0 {
		return errors.New("processing.min_delay_ms must be >= 0")
	}
	if c.Processing.MaxDelayMS < c.Processing.MinDelayMS {
		return errors.New("processing.max_delay_ms must be >= processing.min_delay_ms")
	}
	if c.Processing.SuccessRate < 0 || c.Processing.SuccessRate > 1 {
		return errors.New("processing.success_rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if err := ensureOneOf("queue.backend", c.Queue.Backend, BackendSQLite, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := ensureOneOf("lock.backend", c.Lock.Backend, BackendSQLite, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := ensureOneOf("cache.backend", c.Cache.Backend, BackendMemory, BackendRedis, BackendNone); err != nil {
		return err
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must be >= 0")
	}
	return nil
}

// validateLeases keeps a lease alive for the whole processing window and keeps
// a job hidden for at least as long as its lease.
func (c *Config) validateLeases() error {
	if c.LockTTL() <= c.MaxDelay() {
		return fmt.Errorf("lock.ttl_seconds (%s) must be greater than processing.max_delay_ms (%s)", c.LockTTL(), c.MaxDelay())
	}
	if c.VisibilityTimeout() < c.LockTTL() {
		return fmt.Errorf("queue.visibility_timeout_seconds (%s) must be >= lock.ttl_seconds (%s)", c.VisibilityTimeout(), c.LockTTL())
	}
	return nil
}

func ensureOneOf(key, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, allowed, value)
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
