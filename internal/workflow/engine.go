package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"photoflow/internal/cache"
	"photoflow/internal/jobqueue"
	"photoflow/internal/logging"
	"photoflow/internal/notifications"
	"photoflow/internal/photos"
	"photoflow/internal/store"
)

// Engine owns the photo state machine. It is the only writer of photo
// records, and every write it performs invalidates the cached views and
// publishes the appended event.
type Engine struct {
	store     store.Store
	queue     jobqueue.Queue
	views     *cache.Views
	publisher notifications.Publisher
	logger    *slog.Logger
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithViews sets the read-through cache. Without it reads go to the store.
func WithViews(views *cache.Views) Option {
	return func(e *Engine) {
		if views != nil {
			e.views = views
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher notifications.Publisher) Option {
	return func(e *Engine) {
		if publisher != nil {
			e.publisher = publisher
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine wires the engine to its store and queue.
func NewEngine(st store.Store, queue jobqueue.Queue, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		queue:     queue,
		publisher: notifications.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "workflow")
	if e.views == nil {
		e.views = cache.NewViews(cache.Disabled{}, 0, 0, e.logger)
	}
	return e
}

// CreateRequest carries the metadata of a newly uploaded photo.
type CreateRequest struct {
	OriginalName string
	StoragePath  string
}

// CreatePhoto records the upload, queues the photo and enqueues its
// processing job. When the record was written but the job could not be
// enqueued, the QUEUED photo is returned together with the queue error;
// ReconcileQueued or Requeue repairs it later.
func (e *Engine) CreatePhoto(ctx context.Context, req CreateRequest) (*photos.Photo, error) {
	name := strings.TrimSpace(req.OriginalName)
	if name == "" {
		return nil, fmt.Errorf("%w: original name is required", photos.ErrInvalidInput)
	}
	id := uuid.NewString()
	created, event, err := e.store.Create(ctx, store.NewPhoto{
		ID:           id,
		Filename:     photos.StoredFilename(id, name),
		OriginalName: name,
		StoragePath:  strings.TrimSpace(req.StoragePath),
	})
	if err != nil {
		return nil, err
	}
	ctx = logging.WithPhotoID(ctx, created.ID)
	e.afterWrite(ctx, created.ID, event)
	logging.WithContext(ctx, e.logger).Info("photo created",
		logging.String(logging.FieldEventType, string(event.Type)),
		logging.String("original_name", name),
	)

	queued, err := e.Transition(ctx, created.ID, photos.StatusUploaded, photos.StatusQueued, "")
	if err != nil {
		return nil, err
	}
	if err := e.enqueue(ctx, queued.ID); err != nil {
		return queued, err
	}
	return queued, nil
}

// Transition moves a photo from fromExpected to to and appends the matching
// event atomically. A stale fromExpected or an illegal edge fails with
// ErrInvalidTransition and changes nothing.
func (e *Engine) Transition(ctx context.Context, photoID string, fromExpected, to photos.Status, message string) (*photos.Photo, error) {
	ctx = logging.WithPhotoID(ctx, photoID)
	logger := logging.WithContext(ctx, e.logger)
	updated, event, err := e.store.Transition(ctx, photoID, fromExpected, to, message)
	if err != nil {
		if photos.IsInfrastructure(err) {
			logger.Error("status transition failed",
				logging.String("from", string(fromExpected)),
				logging.String("to", string(to)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "transition_failed"),
				logging.String(logging.FieldErrorHint, "check the database file and disk space"),
			)
		}
		return nil, err
	}
	e.afterWrite(ctx, photoID, event)
	logger.Info("photo status changed",
		logging.String("from", string(fromExpected)),
		logging.String(logging.FieldStatus, string(to)),
		logging.String(logging.FieldEventType, string(event.Type)),
		logging.String("message", event.Message),
	)
	return updated, nil
}

// MarkProcessingStarted moves a QUEUED photo to PROCESSING.
func (e *Engine) MarkProcessingStarted(ctx context.Context, photoID string) (*photos.Photo, error) {
	return e.Transition(ctx, photoID, photos.StatusQueued, photos.StatusProcessing, "")
}

// MarkProcessingResult moves a PROCESSING photo to COMPLETED or FAILED. On
// success detail is used as the event message when non-empty; on failure it
// is the failure reason.
func (e *Engine) MarkProcessingResult(ctx context.Context, photoID string, success bool, detail string) (*photos.Photo, error) {
	if success {
		return e.Transition(ctx, photoID, photos.StatusProcessing, photos.StatusCompleted, detail)
	}
	return e.Transition(ctx, photoID, photos.StatusProcessing, photos.StatusFailed, photos.FailedMessage(detail))
}

func (e *Engine) enqueue(ctx context.Context, photoID string) error {
	job, err := e.queue.Enqueue(ctx, jobqueue.Job{PhotoID: photoID, Target: photos.StatusProcessing})
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, e.logger), "enqueue failed; photo stays queued until reconciled", "enqueue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'photoflow queue requeue <id>' once the queue is reachable"),
		)
		return err
	}
	logging.WithContext(ctx, e.logger).Debug("job enqueued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("queue", jobqueue.Name),
	)
	return nil
}

// afterWrite runs the side effects of a committed write. Neither can fail the
// write.
func (e *Engine) afterWrite(ctx context.Context, photoID string, event *photos.Event) {
	e.views.Invalidate(ctx, photoID)
	if event == nil {
		return
	}
	if err := e.publisher.Publish(ctx, *event); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "event publish failed", "event_publish_failed",
			logging.String("event_id", event.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the kafka brokers in [events]"),
			logging.String(logging.FieldImpact, "downstream consumers miss this event; the event log still has it"),
		)
	}
}
