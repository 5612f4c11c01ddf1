package cache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"photoflow/internal/cache"
	"photoflow/internal/logging"
	"photoflow/internal/photos"
	"photoflow/internal/testsupport"
)

func TestKeys(t *testing.T) {
	queued := photos.StatusQueued
	cases := []struct {
		got  string
		want string
	}{
		{cache.ListKey(nil, 1, 20), "photos:list:all:1:20"},
		{cache.ListKey(&queued, 3, 50), "photos:list:QUEUED:3:50"},
		{cache.DetailKey("abc"), "photos:detail:abc"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key = %q, want %q", tc.got, tc.want)
		}
	}
}

func backends(t *testing.T) map[string]cache.Backend {
	out := map[string]cache.Backend{"memory": cache.NewMemory()}
	if addr := os.Getenv("PHOTOFLOW_TEST_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		out["redis"] = cache.NewRedis(client)
	}
	return out
}

func TestBackendContract(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			prefix := "photos:test:" + time.Now().Format("150405.000000000") + ":"

			if _, ok, err := backend.Get(ctx, prefix+"missing"); err != nil || ok {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}
			if err := backend.Set(ctx, prefix+"a", []byte("1"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := backend.Set(ctx, prefix+"b", []byte("2"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := backend.Set(ctx, "other:"+prefix, []byte("3"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			value, ok, err := backend.Get(ctx, prefix+"a")
			if err != nil || !ok || string(value) != "1" {
				t.Fatalf("Get = %q ok=%v err=%v", value, ok, err)
			}

			if err := backend.DeletePrefix(ctx, prefix); err != nil {
				t.Fatalf("DeletePrefix: %v", err)
			}
			for _, key := range []string{prefix + "a", prefix + "b"} {
				if _, ok, _ := backend.Get(ctx, key); ok {
					t.Fatalf("%s survived DeletePrefix", key)
				}
			}
			if _, ok, _ := backend.Get(ctx, "other:"+prefix); !ok {
				t.Fatal("DeletePrefix removed a key outside the prefix")
			}
			if err := backend.Delete(ctx, "other:"+prefix); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := backend.Get(ctx, "other:"+prefix); ok {
				t.Fatal("Delete left the key behind")
			}
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	backend := cache.NewMemory().WithClock(clock.Now)
	ctx := context.Background()

	_ = backend.Set(ctx, "k", []byte("v"), 30*time.Second)
	clock.Advance(29 * time.Second)
	if _, ok, _ := backend.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}
	clock.Advance(time.Second)
	if _, ok, _ := backend.Get(ctx, "k"); ok {
		t.Fatal("entry outlived its ttl")
	}
	if backend.Len() != 0 {
		t.Fatalf("expired entry not dropped, len=%d", backend.Len())
	}
}

func TestViewsReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	views := cache.NewViews(cache.NewMemory(), 0, 0, logging.NewNop())

	current := &photos.Photo{ID: "p1", OriginalName: "sunset.jpg", Status: photos.StatusQueued}
	loads := 0
	load := func(context.Context) (*photos.Photo, error) {
		loads++
		return current.Clone(), nil
	}

	first, err := views.Photo(ctx, "p1", load)
	if err != nil || first.Status != photos.StatusQueued {
		t.Fatalf("first read: %+v err=%v", first, err)
	}
	current.Status = photos.StatusProcessing
	cached, _ := views.Photo(ctx, "p1", load)
	if cached.Status != photos.StatusQueued || loads != 1 {
		t.Fatalf("expected cached QUEUED after one load, got %s loads=%d", cached.Status, loads)
	}

	views.Invalidate(ctx, "p1")
	fresh, _ := views.Photo(ctx, "p1", load)
	if fresh.Status != photos.StatusProcessing || loads != 2 {
		t.Fatalf("expected reload after invalidation, got %s loads=%d", fresh.Status, loads)
	}
}

func TestViewsListInvalidation(t *testing.T) {
	ctx := context.Background()
	views := cache.NewViews(cache.NewMemory(), 0, 0, logging.NewNop())

	total := 1
	load := func(context.Context) (photos.Page[*photos.Photo], error) {
		items := make([]*photos.Photo, total)
		for i := range items {
			items[i] = &photos.Photo{ID: string(rune('a' + i))}
		}
		return photos.NewPage(items, total, 1, 20), nil
	}

	page, _ := views.PhotoList(ctx, nil, 1, 20, load)
	if page.Total != 1 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	total = 2
	if page, _ = views.PhotoList(ctx, nil, 1, 20, load); page.Total != 1 {
		t.Fatalf("expected cached page, got total %d", page.Total)
	}
	views.Invalidate(ctx, "anything")
	if page, _ = views.PhotoList(ctx, nil, 1, 20, load); page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected refreshed page, got %+v", page)
	}
}

type brokenBackend struct{ cache.Disabled }

var errBroken = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error { return errBroken }

func (brokenBackend) DeletePrefix(context.Context, string) error { return errBroken }

func (brokenBackend) Ping(context.Context) error { return errBroken }

func TestViewsTreatBackendErrorsAsMisses(t *testing.T) {
	ctx := context.Background()
	views := cache.NewViews(brokenBackend{}, 0, 0, logging.NewNop())

	photo, err := views.Photo(ctx, "p1", func(context.Context) (*photos.Photo, error) {
		return &photos.Photo{ID: "p1"}, nil
	})
	if err != nil || photo.ID != "p1" {
		t.Fatalf("expected store fallback, got %+v err=%v", photo, err)
	}
	views.Invalidate(ctx, "p1")

	if err := views.Ping(ctx); !errors.Is(err, photos.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable from Ping, got %v", err)
	}
}

func TestViewsPropagateLoadErrors(t *testing.T) {
	views := cache.NewViews(cache.Disabled{}, 0, 0, logging.NewNop())
	_, err := views.Photo(context.Background(), "missing", func(context.Context) (*photos.Photo, error) {
		return nil, photos.ErrNotFound
	})
	if !errors.Is(err, photos.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerationGuardsWrites(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			prefix := "photos:test:" + time.Now().Format("150405.000000000") + ":"
			key, genKey := prefix+"entry", prefix+"gen"
			t.Cleanup(func() { _ = backend.Delete(ctx, key, genKey) })

			gen, err := backend.Generation(ctx, genKey)
			if err != nil || gen != 0 {
				t.Fatalf("Generation = %d err=%v, want 0", gen, err)
			}
			if err := backend.Bump(ctx, genKey); err != nil {
				t.Fatalf("Bump: %v", err)
			}
			if stored, err := backend.SetIfGeneration(ctx, key, []byte("old"), time.Minute, genKey, gen); err != nil || stored {
				t.Fatalf("write with stale generation: stored=%v err=%v", stored, err)
			}
			if _, ok, _ := backend.Get(ctx, key); ok {
				t.Fatal("stale write reached the cache")
			}

			current, _ := backend.Generation(ctx, genKey)
			if current != 1 {
				t.Fatalf("Generation after bump = %d, want 1", current)
			}
			if stored, err := backend.SetIfGeneration(ctx, key, []byte("new"), time.Minute, genKey, current); err != nil || !stored {
				t.Fatalf("write with current generation: stored=%v err=%v", stored, err)
			}
			value, ok, _ := backend.Get(ctx, key)
			if !ok || string(value) != "new" {
				t.Fatalf("Get = %q ok=%v, want new", value, ok)
			}
		})
	}
}

func TestLoadRacingInvalidationIsNotCached(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			views := cache.NewViews(backend, time.Minute, time.Minute, logging.NewNop())
			id := "race-" + time.Now().Format("150405.000000000")
			t.Cleanup(func() { views.Invalidate(ctx, id) })

			loading := make(chan struct{})
			resume := make(chan struct{})
			stale := &photos.Photo{ID: id, Status: photos.StatusQueued}
			done := make(chan *photos.Photo, 1)
			go func() {
				photo, _ := views.Photo(ctx, id, func(context.Context) (*photos.Photo, error) {
					close(loading)
					<-resume
					return stale, nil
				})
				done <- photo
			}()

			<-loading
			// The transition commits and invalidates while the read is in flight.
			views.Invalidate(ctx, id)
			close(resume)
			if photo := <-done; photo.Status != photos.StatusQueued {
				t.Fatalf("in-flight read returned %s, want its own snapshot", photo.Status)
			}

			fresh, err := views.Photo(ctx, id, func(context.Context) (*photos.Photo, error) {
				return &photos.Photo{ID: id, Status: photos.StatusProcessing}, nil
			})
			if err != nil {
				t.Fatalf("Photo: %v", err)
			}
			if fresh.Status != photos.StatusProcessing {
				t.Fatalf("detail read after invalidation = %s, want PROCESSING", fresh.Status)
			}
		})
	}
}
