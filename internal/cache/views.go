package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"photoflow/internal/logging"
	"photoflow/internal/photos"
)

const (
	listKeyPrefix   = "photos:list:"
	detailKeyPrefix = "photos:detail:"

	// Generation counters. Invalidation bumps them before deleting entries,
	// and a load only caches its result if the counter did not move.
	listGenerationKey      = "photos:gen:list"
	detailGenerationPrefix = "photos:gen:detail:"

	DefaultListTTL   = 30 * time.Second
	DefaultDetailTTL = 60 * time.Second
)

// ListKey names the cached page of a photo listing. A nil status lists all.
func ListKey(status *photos.Status, page, limit int) string {
	scope := "all"
	if status != nil {
		scope = string(*status)
	}
	return fmt.Sprintf("%s%s:%d:%d", listKeyPrefix, scope, page, limit)
}

// DetailKey names the cached record of one photo.
func DetailKey(photoID string) string {
	return detailKeyPrefix + photoID
}

// Views layers the photo read models over a Backend. Backend failures are
// logged and treated as misses; the cache never fails a request.
type Views struct {
	backend   Backend
	listTTL   time.Duration
	detailTTL time.Duration
	logger    *slog.Logger
}

// NewViews wraps backend. Zero TTLs fall back to the defaults.
func NewViews(backend Backend, listTTL, detailTTL time.Duration, logger *slog.Logger) *Views {
	if backend == nil {
		backend = Disabled{}
	}
	if listTTL <= 0 {
		listTTL = DefaultListTTL
	}
	if detailTTL <= 0 {
		detailTTL = DefaultDetailTTL
	}
	return &Views{
		backend:   backend,
		listTTL:   listTTL,
		detailTTL: detailTTL,
		logger:    logging.NewComponentLogger(logger, "cache"),
	}
}

// Photo returns the cached detail record or loads and caches it.
func (v *Views) Photo(ctx context.Context, id string, load func(context.Context) (*photos.Photo, error)) (*photos.Photo, error) {
	return readThrough(ctx, v, DetailKey(id), detailGenerationPrefix+id, v.detailTTL, load)
}

// PhotoList returns the cached listing page or loads and caches it.
func (v *Views) PhotoList(ctx context.Context, status *photos.Status, page, limit int, load func(context.Context) (photos.Page[*photos.Photo], error)) (photos.Page[*photos.Photo], error) {
	return readThrough(ctx, v, ListKey(status, page, limit), listGenerationKey, v.listTTL, load)
}

// Invalidate drops the photo's detail record and every cached listing.
func (v *Views) Invalidate(ctx context.Context, photoID string) {
	if photoID != "" {
		if err := v.backend.Bump(ctx, detailGenerationPrefix+photoID); err != nil {
			v.warn(ctx, "cache generation bump failed", detailGenerationPrefix+photoID, err)
		}
		if err := v.backend.Delete(ctx, DetailKey(photoID)); err != nil {
			v.warn(ctx, "cache delete failed", DetailKey(photoID), err)
		}
	}
	v.InvalidateLists(ctx)
}

// InvalidateLists drops every cached listing page.
func (v *Views) InvalidateLists(ctx context.Context) {
	if err := v.backend.Bump(ctx, listGenerationKey); err != nil {
		v.warn(ctx, "cache generation bump failed", listGenerationKey, err)
	}
	if err := v.backend.DeletePrefix(ctx, listKeyPrefix); err != nil {
		v.warn(ctx, "cache list invalidation failed", listKeyPrefix+"*", err)
	}
}

// Ping reports whether the backend answers.
func (v *Views) Ping(ctx context.Context) error {
	if err := v.backend.Ping(ctx); err != nil {
		return photos.Wrap(photos.ErrCacheUnavailable, "cache", "ping", err)
	}
	return nil
}

// readThrough serves key from the cache or loads it. The result is cached
// only if genKey did not move during the load, so a load that raced an
// invalidation never repopulates the entry with the older value.
func readThrough[T any](ctx context.Context, v *Views, key, genKey string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	raw, ok, err := v.backend.Get(ctx, key)
	if err != nil {
		v.warn(ctx, "cache read failed", key, err)
	}
	if ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			return cached, nil
		}
		v.warn(ctx, "cache entry undecodable", key, err)
	}

	gen, genErr := v.backend.Generation(ctx, genKey)
	if genErr != nil {
		v.warn(ctx, "cache generation read failed", genKey, genErr)
	}

	value, err := load(ctx)
	if err != nil || genErr != nil {
		return value, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		v.warn(ctx, "cache encode failed", key, err)
		return value, nil
	}
	if _, err := v.backend.SetIfGeneration(ctx, key, encoded, ttl, genKey, gen); err != nil {
		v.warn(ctx, "cache write failed", key, err)
	}
	return value, nil
}

func (v *Views) warn(ctx context.Context, msg, key string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, v.logger), msg, "cache_degraded",
		logging.String("key", key),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the cache backend; reads fall through to the store"),
		logging.String(logging.FieldImpact, "request served without cache"),
	)
}
