package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"photoflow/internal/photos"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements leases with SET NX PX. Expiry is enforced by Redis.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client. The caller owns the client.
func NewRedis(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return Lease{}, false, photos.Wrap(photos.ErrLockUnavailable, "lock", "acquire", err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token, ExpiresAt: time.Now().UTC().Add(ttl)}, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease Lease) error {
	if lease.Key == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err(); err != nil {
		return photos.Wrap(photos.ErrLockUnavailable, "lock", "release", err)
	}
	return nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return photos.Wrap(photos.ErrLockUnavailable, "lock", "ping", err)
	}
	return nil
}
