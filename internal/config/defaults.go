package config

// Backend names accepted by the queue, lock and cache sections.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

const (
	defaultConfigPath               = "~/.config/photoflow/config.toml"
	defaultDataDir                  = "~/.local/share/photoflow"
	defaultLogDir                   = "~/.local/share/photoflow/logs"
	defaultWorkerCount              = 2
	defaultDequeueWaitMS            = 1000
	defaultPollIntervalMS           = 200
	defaultContentionDelayMS        = 1000
	defaultDrainTimeoutSeconds      = 30
	defaultMinDelayMS               = 2000
	defaultMaxDelayMS               = 5000
	defaultSuccessRate              = 0.9
	defaultVisibilityTimeoutSeconds = 60
	defaultLockTTLSeconds           = 30
	defaultRedisAddr                = "127.0.0.1:6379"
	defaultListTTLSeconds           = 30
	defaultDetailTTLSeconds         = 60
	defaultKafkaTopic               = "photo_events"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Workflow: Workflow{
			WorkerCount:         defaultWorkerCount,
			DequeueWaitMS:       defaultDequeueWaitMS,
			PollIntervalMS:      defaultPollIntervalMS,
			ContentionDelayMS:   defaultContentionDelayMS,
			DrainTimeoutSeconds: defaultDrainTimeoutSeconds,
		},
		Processing: Processing{
			MinDelayMS:  defaultMinDelayMS,
			MaxDelayMS:  defaultMaxDelayMS,
			SuccessRate: defaultSuccessRate,
		},
		Queue: Queue{
			Backend:                  BackendSQLite,
			VisibilityTimeoutSeconds: defaultVisibilityTimeoutSeconds,
		},
		Lock: Lock{
			Backend:    BackendSQLite,
			TTLSeconds: defaultLockTTLSeconds,
		},
		Cache: Cache{
			Backend:          BackendMemory,
			RedisAddr:        defaultRedisAddr,
			ListTTLSeconds:   defaultListTTLSeconds,
			DetailTTLSeconds: defaultDetailTTLSeconds,
		},
		Events: Events{
			KafkaTopic: defaultKafkaTopic,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
