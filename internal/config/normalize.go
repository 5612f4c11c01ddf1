package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackends()
	c.normalizeCache()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackends() {
	c.Queue.Backend = normalizeBackend(c.Queue.Backend, BackendSQLite)
	c.Lock.Backend = normalizeBackend(c.Lock.Backend, BackendSQLite)
	c.Cache.Backend = normalizeBackend(c.Cache.Backend, BackendMemory)
}

func normalizeBackend(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func (c *Config) normalizeCache() {
	if value, ok := os.LookupEnv("PHOTOFLOW_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Cache.RedisAddr = strings.TrimSpace(value)
	}
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = defaultRedisAddr
	}
	if c.Cache.ListTTLSeconds <= 0 {
		c.Cache.ListTTLSeconds = defaultListTTLSeconds
	}
	if c.Cache.DetailTTLSeconds <= 0 {
		c.Cache.DetailTTLSeconds = defaultDetailTTLSeconds
	}
}

func (c *Config) normalizeEvents() {
	if len(c.Events.KafkaBrokers) == 0 {
		if value, ok := os.LookupEnv("PHOTOFLOW_KAFKA_BROKERS"); ok {
			c.Events.KafkaBrokers = strings.Split(value, ",")
		}
	}
	brokers := make([]string, 0, len(c.Events.KafkaBrokers))
	seen := make(map[string]struct{}, len(c.Events.KafkaBrokers))
	for _, broker := range c.Events.KafkaBrokers {
		normalized := strings.TrimSpace(broker)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		brokers = append(brokers, normalized)
	}
	c.Events.KafkaBrokers = brokers
	c.Events.KafkaTopic = strings.TrimSpace(c.Events.KafkaTopic)
	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = defaultKafkaTopic
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
