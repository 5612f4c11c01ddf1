package workflow

import (
	"context"
	"fmt"

	"photoflow/internal/photos"
	"photoflow/internal/store"
)

// GetPhoto returns one photo, served from the detail cache when fresh.
func (e *Engine) GetPhoto(ctx context.Context, id string) (*photos.Photo, error) {
	return e.views.Photo(ctx, id, func(ctx context.Context) (*photos.Photo, error) {
		return e.store.Get(ctx, id)
	})
}

// ListPhotos returns a page of photos, newest first. A nil status lists all.
func (e *Engine) ListPhotos(ctx context.Context, status *photos.Status, page, limit int) (photos.Page[*photos.Photo], error) {
	if status != nil && !status.Valid() {
		return photos.Page[*photos.Photo]{}, fmt.Errorf("%w: unknown status %q", photos.ErrInvalidInput, *status)
	}
	page, limit = photos.NormalizePaging(page, limit)
	return e.views.PhotoList(ctx, status, page, limit, func(ctx context.Context) (photos.Page[*photos.Photo], error) {
		return e.store.List(ctx, store.PhotoFilter{Status: status, Page: page, Limit: limit})
	})
}

// ListEvents returns a page of events. With a photo id it is that photo's
// history, oldest first; without one it is the global feed, newest first.
// Events are not cached.
func (e *Engine) ListEvents(ctx context.Context, photoID string, page, limit int) (photos.Page[photos.Event], error) {
	page, limit = photos.NormalizePaging(page, limit)
	return e.store.ListEvents(ctx, store.EventFilter{PhotoID: photoID, Page: page, Limit: limit})
}

// PhotoHistory returns every event of one photo, oldest first.
func (e *Engine) PhotoHistory(ctx context.Context, id string) ([]photos.Event, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.store.EventsForPhoto(ctx, id)
}

// CurrentPhoto reads the record straight from the store, bypassing the cache.
// Workers use it to decide what a delivered job still needs.
func (e *Engine) CurrentPhoto(ctx context.Context, id string) (*photos.Photo, error) {
	return e.store.Get(ctx, id)
}
