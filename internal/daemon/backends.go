package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"photoflow/internal/cache"
	"photoflow/internal/config"
	"photoflow/internal/database"
	"photoflow/internal/jobqueue"
	"photoflow/internal/lock"
	"photoflow/internal/logging"
	"photoflow/internal/notifications"
	"photoflow/internal/store"
	"photoflow/internal/workflow"
)

// Backends holds every storage and transport handle built from config.
// Close releases them in reverse order of construction.
type Backends struct {
	DB        *database.DB
	Store     store.Store
	Queue     jobqueue.Queue
	Locker    lock.Locker
	Views     *cache.Views
	Publisher notifications.Publisher
	Engine    *workflow.Engine

	redis *redis.Client
}

// OpenBackends opens the database and selects the queue, lock and cache
// implementations named in cfg. Redis is dialled once and shared by every
// backend configured for it.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	b := &Backends{DB: db, Store: store.NewSQLite(db)}

	if cfg.NeedsRedis() {
		client, err := cache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.redis = client
	}

	switch cfg.Queue.Backend {
	case config.BackendMemory:
		b.Queue = jobqueue.NewMemory(cfg.VisibilityTimeout())
	case config.BackendRedis:
		b.Queue = jobqueue.NewRedis(b.redis, "", cfg.VisibilityTimeout(), cfg.PollInterval())
	default:
		b.Queue = jobqueue.NewSQLite(db, cfg.VisibilityTimeout(), cfg.PollInterval())
	}

	switch cfg.Lock.Backend {
	case config.BackendMemory:
		b.Locker = lock.NewMemory()
	case config.BackendRedis:
		b.Locker = lock.NewRedis(b.redis)
	default:
		b.Locker = lock.NewSQLite(db)
	}

	var cacheBackend cache.Backend
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		cacheBackend = cache.NewRedis(b.redis)
	case config.BackendNone:
		cacheBackend = cache.Disabled{}
	default:
		cacheBackend = cache.NewMemory()
	}
	b.Views = cache.NewViews(cacheBackend, cfg.ListTTL(), cfg.DetailTTL(), logger)
	b.Publisher = notifications.NewPublisher(cfg)

	b.Engine = workflow.NewEngine(b.Store, b.Queue,
		workflow.WithViews(b.Views),
		workflow.WithPublisher(b.Publisher),
		workflow.WithLogger(logger),
	)
	return b, nil
}

// Close flushes the publisher and closes Redis and the database.
func (b *Backends) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		b.Publisher = nil
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		b.redis = nil
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		b.DB = nil
	}
	return errors.Join(errs...)
}
