package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/database"
	"photoflow/internal/photos"
)

// SQLiteLocker stores leases in the locks table so the daemon and CLI
// processes sharing a database see the same holders.
type SQLiteLocker struct {
	db  *database.DB
	now Clock
}

// NewSQLite returns a locker backed by db.
func NewSQLite(db *database.DB) *SQLiteLocker {
	return &SQLiteLocker{db: db, now: time.Now}
}

// WithClock overrides the time source used for expiry.
func (l *SQLiteLocker) WithClock(now Clock) *SQLiteLocker {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *SQLiteLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	now := l.now().UTC()
	lease := Lease{Key: key, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	// The upsert only overwrites an expired holder, so zero affected rows
	// means the key is taken.
	res, err := l.db.Exec(ctx,
		`INSERT INTO locks (key, token, expires_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
         WHERE locks.expires_at <= ?`,
		lease.Key,
		lease.Token,
		database.FormatTime(lease.ExpiresAt),
		database.FormatTime(now),
	)
	if err != nil {
		return Lease{}, false, photos.Wrap(photos.ErrLockUnavailable, "lock", "acquire", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Lease{}, false, photos.Wrap(photos.ErrLockUnavailable, "lock", "acquire", err)
	}
	if affected == 0 {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

func (l *SQLiteLocker) Release(ctx context.Context, lease Lease) error {
	if lease.Key == "" {
		return nil
	}
	if _, err := l.db.Exec(ctx, `DELETE FROM locks WHERE key = ? AND token = ?`, lease.Key, lease.Token); err != nil {
		return photos.Wrap(photos.ErrLockUnavailable, "lock", "release", err)
	}
	return nil
}

func (l *SQLiteLocker) Ping(ctx context.Context) error {
	if err := l.db.Ping(ctx); err != nil {
		return photos.Wrap(photos.ErrLockUnavailable, "lock", "ping", err)
	}
	return nil
}
