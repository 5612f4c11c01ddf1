package lock_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"photoflow/internal/lock"
	"photoflow/internal/testsupport"
)

const ttl = 10 * time.Second

type lockerCase struct {
	name string
	open func(t *testing.T, clock *testsupport.Clock) lock.Locker
	// fakeTime is false for backends whose expiry runs on a real clock.
	fakeTime bool
}

func lockerCases(t *testing.T) []lockerCase {
	cases := []lockerCase{
		{name: "memory", fakeTime: true, open: func(t *testing.T, clock *testsupport.Clock) lock.Locker {
			return lock.NewMemory().WithClock(clock.Now)
		}},
		{name: "sqlite", fakeTime: true, open: func(t *testing.T, clock *testsupport.Clock) lock.Locker {
			return lock.NewSQLite(testsupport.MustOpenDatabase(t)).WithClock(clock.Now)
		}},
	}
	if addr := os.Getenv("PHOTOFLOW_TEST_REDIS_ADDR"); addr != "" {
		cases = append(cases, lockerCase{name: "redis", open: func(t *testing.T, _ *testsupport.Clock) lock.Locker {
			client := redis.NewClient(&redis.Options{Addr: addr})
			t.Cleanup(func() { _ = client.Close() })
			return lock.NewRedis(client)
		}})
	}
	return cases
}

func forEachLocker(t *testing.T, fn func(t *testing.T, tc lockerCase, l lock.Locker, clock *testsupport.Clock)) {
	t.Helper()
	for _, tc := range lockerCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			fn(t, tc, tc.open(t, clock), clock)
		})
	}
}

func uniqueKey(t *testing.T) string {
	return lock.PhotoKey(t.Name() + "-" + time.Now().Format("150405.000000000"))
}

func TestPhotoKey(t *testing.T) {
	if got := lock.PhotoKey("abc"); got != "photos:lock:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	forEachLocker(t, func(t *testing.T, _ lockerCase, l lock.Locker, _ *testsupport.Clock) {
		ctx := context.Background()
		key := uniqueKey(t)

		lease, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil || !ok {
			t.Fatalf("first acquire: ok=%v err=%v", ok, err)
		}
		if lease.Key != key || lease.Token == "" {
			t.Fatalf("unexpected lease %+v", lease)
		}
		if _, ok, err := l.TryAcquire(ctx, key, ttl); err != nil || ok {
			t.Fatalf("second acquire should be contended: ok=%v err=%v", ok, err)
		}

		if err := l.Release(ctx, lease); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if err := l.Release(ctx, lease); err != nil {
			t.Fatalf("second Release should be a no-op: %v", err)
		}
		again, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil || !ok {
			t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
		}
		_ = l.Release(ctx, again)
	})
}

func TestExpiredLeaseCanBeTakenOver(t *testing.T) {
	forEachLocker(t, func(t *testing.T, tc lockerCase, l lock.Locker, clock *testsupport.Clock) {
		if !tc.fakeTime {
			t.Skip("expiry runs on the server clock")
		}
		ctx := context.Background()
		key := uniqueKey(t)

		stale, ok, _ := l.TryAcquire(ctx, key, ttl)
		if !ok {
			t.Fatal("first acquire failed")
		}
		clock.Advance(ttl)
		fresh, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil || !ok {
			t.Fatalf("takeover after expiry: ok=%v err=%v", ok, err)
		}

		// The stale holder must not release the new holder's lease.
		if err := l.Release(ctx, stale); err != nil {
			t.Fatalf("Release stale: %v", err)
		}
		if _, ok, _ := l.TryAcquire(ctx, key, ttl); ok {
			t.Fatal("stale release dropped the new lease")
		}
		_ = l.Release(ctx, fresh)
	})
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	forEachLocker(t, func(t *testing.T, _ lockerCase, l lock.Locker, _ *testsupport.Clock) {
		ctx := context.Background()
		key := uniqueKey(t)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := l.TryAcquire(ctx, key, ttl)
				if err != nil {
					t.Errorf("TryAcquire: %v", err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})
}

func TestPing(t *testing.T) {
	forEachLocker(t, func(t *testing.T, _ lockerCase, l lock.Locker, _ *testsupport.Clock) {
		if err := l.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
