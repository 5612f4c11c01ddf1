package cache

import (
	"context"
	"time"
)

// Backend is a byte-oriented key/value cache with per-entry TTLs.
type Backend interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Generation returns the counter stored at key, zero when unset.
	Generation(ctx context.Context, key string) (int64, error)
	// Bump increments the counters at keys.
	Bump(ctx context.Context, keys ...string) error
	// SetIfGeneration stores value only while the counter at genKey still
	// equals gen, and reports whether it did. Check and write are atomic.
	SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, genKey string, gen int64) (bool, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time. The memory backend defaults to time.Now.
type Clock func() time.Time

// Disabled is a Backend that stores nothing, so every read misses.
type Disabled struct{}

func (Disabled) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Disabled) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Disabled) Delete(context.Context, ...string) error { return nil }

func (Disabled) DeletePrefix(context.Context, string) error { return nil }

func (Disabled) Generation(context.Context, string) (int64, error) { return 0, nil }

func (Disabled) Bump(context.Context, ...string) error { return nil }

func (Disabled) SetIfGeneration(context.Context, string, []byte, time.Duration, string, int64) (bool, error) {
	return false, nil
}

func (Disabled) Ping(context.Context) error { return nil }
