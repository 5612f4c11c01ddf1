package worker

import (
	"context"
	"errors"
	"log/slog"

	"photoflow/internal/jobqueue"
	"photoflow/internal/lock"
	"photoflow/internal/logging"
	"photoflow/internal/photos"
)

// Result is what one ProcessNext call did.
type Result int

const (
	// ResultIdle means no job became visible within the dequeue wait.
	ResultIdle Result = iota
	ResultCompleted
	ResultFailed
	// ResultContended means another worker holds the photo lock; the job was
	// released back to the queue.
	ResultContended
	// ResultSkipped means the job had nothing left to do and was acknowledged.
	ResultSkipped
	// ResultRetry means an infrastructure error left the job for redelivery.
	ResultRetry
)

func (r Result) String() string {
	switch r {
	case ResultIdle:
		return "idle"
	case ResultCompleted:
		return "completed"
	case ResultFailed:
		return "failed"
	case ResultContended:
		return "contended"
	case ResultSkipped:
		return "skipped"
	case ResultRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ProcessNext runs one iteration of a worker loop: dequeue, lock, process,
// record the outcome, acknowledge.
func (p *Pool) ProcessNext(ctx context.Context, workerID int) (Result, error) {
	return p.processNext(ctx, ctx, workerID)
}

// processNext waits for a job on loopCtx and does the work on jobCtx.
func (p *Pool) processNext(loopCtx, jobCtx context.Context, workerID int) (Result, error) {
	delivery, err := p.queue.Dequeue(loopCtx, p.settings.DequeueWait)
	if errors.Is(err, jobqueue.ErrEmpty) {
		return ResultIdle, nil
	}
	if err != nil {
		if loopCtx.Err() != nil {
			return ResultIdle, loopCtx.Err()
		}
		logging.ErrorWithContext(logging.WithContext(logging.WithWorkerID(loopCtx, workerID), p.logger),
			"dequeue failed", "queue_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue backend access"),
		)
		return ResultIdle, err
	}

	ctx := logging.WithPhotoID(logging.WithWorkerID(jobCtx, workerID), delivery.PhotoID)
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String(logging.FieldJobID, delivery.ID),
		logging.Int("attempt", delivery.Attempt),
	)

	lease, acquired, err := p.locker.TryAcquire(ctx, lock.PhotoKey(delivery.PhotoID), p.settings.LockTTL)
	if err != nil {
		logging.ErrorWithContext(logger, "lock acquire failed", "lock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check lock backend access"),
		)
		p.release(ctx, logger, delivery)
		return ResultRetry, err
	}
	if !acquired {
		logger.Debug("photo locked by another worker; releasing job",
			logging.Duration("retry_in", p.settings.ContentionDelay),
			logging.String(logging.FieldEventType, "lock_contended"),
		)
		p.release(ctx, logger, delivery)
		return ResultContended, nil
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
			logging.WarnWithContext(logger, "lock release failed", "lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the photo stays locked until the lease expires"),
			)
		}
	}()

	return p.handle(ctx, logger, delivery)
}

// handle runs with the photo lock held.
func (p *Pool) handle(ctx context.Context, logger *slog.Logger, delivery *jobqueue.Delivery) (Result, error) {
	photo, err := p.engine.CurrentPhoto(ctx, delivery.PhotoID)
	if errors.Is(err, photos.ErrNotFound) {
		logging.WarnWithContext(logger, "job references unknown photo; dropping", "job_orphaned",
			logging.String(logging.FieldImpact, "job discarded"),
		)
		return p.ack(ctx, logger, delivery, ResultSkipped)
	}
	if err != nil {
		return ResultRetry, err
	}

	switch photo.Status {
	case photos.StatusQueued:
		started, err := p.engine.MarkProcessingStarted(ctx, photo.ID)
		if errors.Is(err, photos.ErrInvalidTransition) {
			logger.Info("photo moved on before processing started; dropping job", logging.Error(err))
			return p.ack(ctx, logger, delivery, ResultSkipped)
		}
		if err != nil {
			return ResultRetry, err
		}
		photo = started
	case photos.StatusProcessing:
		// The lock was free, so whoever marked it PROCESSING is gone.
		logging.WarnWithContext(logger, "resuming interrupted processing", "processing_resumed",
			logging.String(logging.FieldErrorHint, "a previous worker stopped mid-job"),
			logging.String(logging.FieldImpact, "photo is processed again without a second start event"),
		)
	default:
		logger.Info("photo needs no processing; dropping job", logging.String(logging.FieldStatus, string(photo.Status)))
		return p.ack(ctx, logger, delivery, ResultSkipped)
	}

	outcome, err := p.processor.Process(ctx, photo)
	if err != nil {
		// Cancelled mid-run: leave the job for redelivery.
		return ResultRetry, err
	}

	detail := outcome.Reason
	result := ResultFailed
	if outcome.Success {
		detail = photos.CompletedMessage(outcome.Elapsed)
		result = ResultCompleted
	}
	if _, err := p.engine.MarkProcessingResult(ctx, photo.ID, outcome.Success, detail); err != nil {
		if errors.Is(err, photos.ErrInvalidTransition) {
			logger.Info("another worker recorded the outcome first; dropping job", logging.Error(err))
			return p.ack(ctx, logger, delivery, ResultSkipped)
		}
		return ResultRetry, err
	}
	return p.ack(ctx, logger, delivery, result)
}

func (p *Pool) ack(ctx context.Context, logger *slog.Logger, delivery *jobqueue.Delivery, result Result) (Result, error) {
	if err := p.queue.Ack(context.WithoutCancel(ctx), delivery); err != nil {
		logging.WarnWithContext(logger, "job ack failed", "job_ack_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is redelivered and then dropped as already done"),
		)
	}
	return result, nil
}

func (p *Pool) release(ctx context.Context, logger *slog.Logger, delivery *jobqueue.Delivery) {
	if err := p.queue.Release(context.WithoutCancel(ctx), delivery, p.settings.ContentionDelay); err != nil {
		logging.WarnWithContext(logger, "job release failed", "job_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is redelivered after the visibility timeout"),
		)
	}
}
