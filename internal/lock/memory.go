package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker keeps leases in a map guarded by a mutex.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	now    Clock
}

// NewMemory returns an empty in-process locker.
func NewMemory() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]Lease), now: time.Now}
}

// WithClock overrides the time source used for expiry.
func (l *MemoryLocker) WithClock(now Clock) *MemoryLocker {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	if held, ok := l.leases[key]; ok && held.ExpiresAt.After(now) {
		return Lease{}, false, nil
	}
	lease := Lease{Key: key, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	l.leases[key] = lease
	return lease, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[lease.Key]; ok && held.Token == lease.Token {
		delete(l.leases, lease.Key)
	}
	return nil
}

func (l *MemoryLocker) Ping(context.Context) error {
	return nil
}
