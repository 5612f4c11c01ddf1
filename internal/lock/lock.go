package lock

import (
	"context"
	"time"
)

const photoKeyPrefix = "photos:lock:"

// PhotoKey returns the lock key guarding work on one photo.
func PhotoKey(photoID string) string {
	return photoKeyPrefix + photoID
}

// Lease is a held lock. Token distinguishes this holder from whoever acquires
// the key after the lease expires.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Locker hands out expiring mutual-exclusion leases.
type Locker interface {
	// TryAcquire never blocks on the lock itself. It returns false when the
	// key is held by an unexpired lease.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
	// Release drops the lease if it is still the current holder. Releasing an
	// expired or already released lease is a no-op.
	Release(ctx context.Context, lease Lease) error
	Ping(ctx context.Context) error
}

// Clock returns the current time. Lockers default to time.Now.
type Clock func() time.Time
