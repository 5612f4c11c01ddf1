package workflow

import (
	"context"
	"errors"

	"photoflow/internal/jobqueue"
	"photoflow/internal/logging"
	"photoflow/internal/photos"
)

// Health reports backend reachability.
type Health struct {
	QueueReachable bool   `json:"queueReachable"`
	StoreReachable bool   `json:"storeReachable"`
	CacheReachable bool   `json:"cacheReachable"`
	QueueError     string `json:"queueError,omitempty"`
	StoreError     string `json:"storeError,omitempty"`
	CacheError     string `json:"cacheError,omitempty"`
}

// Healthy reports whether every backend answered.
func (h Health) Healthy() bool {
	return h.QueueReachable && h.StoreReachable && h.CacheReachable
}

// HealthCheck pings the queue, the store and the cache.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	var health Health
	if err := e.queue.Ping(ctx); err != nil {
		health.QueueError = err.Error()
	} else {
		health.QueueReachable = true
	}
	if err := e.store.Ping(ctx); err != nil {
		health.StoreError = err.Error()
	} else {
		health.StoreReachable = true
	}
	if err := e.views.Ping(ctx); err != nil {
		health.CacheError = err.Error()
	} else {
		health.CacheReachable = true
	}
	return health
}

// Stats summarizes photo counts per status and the queue depth.
type Stats struct {
	Photos map[photos.Status]int `json:"photos"`
	Queue  jobqueue.Depth        `json:"queue"`
}

// Stats returns the current counts.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	depth, err := e.queue.Depth(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Photos: counts, Queue: depth}, nil
}

// Requeue enqueues a job for a QUEUED or PROCESSING photo that has none
// pending. It reports whether a job was enqueued. FAILED and COMPLETED photos
// are rejected with ErrInvalidTransition.
func (e *Engine) Requeue(ctx context.Context, photoID string) (bool, error) {
	photo, err := e.store.Get(ctx, photoID)
	if err != nil {
		return false, err
	}
	if photo.Status != photos.StatusQueued && photo.Status != photos.StatusProcessing {
		return false, &photos.TransitionError{
			PhotoID:   photoID,
			Expected:  photos.StatusQueued,
			Actual:    photo.Status,
			Requested: photos.StatusProcessing,
		}
	}
	pending, err := e.queue.Pending(ctx, photoID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}
	ctx = logging.WithPhotoID(ctx, photoID)
	if err := e.enqueue(ctx, photoID); err != nil {
		return false, err
	}
	logging.WithContext(ctx, e.logger).Info("photo requeued",
		logging.String(logging.FieldStatus, string(photo.Status)),
		logging.String(logging.FieldEventType, "photo_requeued"),
	)
	return true, nil
}

// ReconcileQueued repairs photos stranded by a crash between a status write
// and the matching enqueue: UPLOADED photos are queued, and every QUEUED or
// PROCESSING photo without a pending job gets one. It returns the number of
// jobs enqueued.
func (e *Engine) ReconcileQueued(ctx context.Context) (int, error) {
	uploaded, err := e.store.IDsWithStatus(ctx, photos.StatusUploaded)
	if err != nil {
		return 0, err
	}
	for _, id := range uploaded {
		if _, err := e.Transition(ctx, id, photos.StatusUploaded, photos.StatusQueued, ""); err != nil && !errors.Is(err, photos.ErrInvalidTransition) {
			return 0, err
		}
	}

	enqueued := 0
	for _, status := range []photos.Status{photos.StatusQueued, photos.StatusProcessing} {
		ids, err := e.store.IDsWithStatus(ctx, status)
		if err != nil {
			return enqueued, err
		}
		for _, id := range ids {
			added, err := e.Requeue(ctx, id)
			if errors.Is(err, photos.ErrInvalidTransition) || errors.Is(err, photos.ErrNotFound) {
				continue
			}
			if err != nil {
				return enqueued, err
			}
			if added {
				enqueued++
			}
		}
	}
	if enqueued > 0 {
		logging.WarnWithContext(e.logger, "re-enqueued stranded photos", "reconcile_requeued",
			logging.Int("count", enqueued),
			logging.String(logging.FieldErrorHint, "a previous run stopped between a status change and its enqueue"),
			logging.String(logging.FieldImpact, "affected photos resume processing"),
		)
	}
	return enqueued, nil
}
