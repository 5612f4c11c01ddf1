package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/database"
	"photoflow/internal/photos"
)

const defaultPollInterval = 200 * time.Millisecond

// SQLiteQueue stores jobs in the shared SQLite database. Waiting consumers
// poll, so jobs enqueued by another process are picked up too.
type SQLiteQueue struct {
	db                *database.DB
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	now               Clock
}

// NewSQLite returns a queue with the given visibility timeout and poll interval.
func NewSQLite(db *database.DB, visibilityTimeout, pollInterval time.Duration) *SQLiteQueue {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &SQLiteQueue{db: db, visibilityTimeout: visibilityTimeout, pollInterval: pollInterval, now: time.Now}
}

// WithClock overrides the time source used for visibility decisions.
func (q *SQLiteQueue) WithClock(now Clock) *SQLiteQueue {
	if now != nil {
		q.now = now
	}
	return q
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Target == "" {
		job.Target = photos.StatusProcessing
	}
	now := q.now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	if _, err := q.db.Exec(ctx,
		`INSERT INTO jobs (id, photo_id, target, enqueued_at, visible_at, receipt, attempts)
         VALUES (?, ?, ?, ?, ?, NULL, 0)`,
		job.ID,
		job.PhotoID,
		job.Target,
		database.FormatTime(job.EnqueuedAt),
		database.FormatTime(now),
	); err != nil {
		return Job{}, photos.Wrap(photos.ErrQueueUnavailable, "queue", "enqueue", err)
	}
	return job, nil
}

func (q *SQLiteQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	ctx = database.EnsureContext(ctx)
	deadline := time.Now().Add(wait)
	for {
		delivery, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, photos.Wrap(photos.ErrQueueUnavailable, "queue", "dequeue", err)
		}
		if delivery != nil {
			return delivery, nil
		}
		if !waitFor(ctx, q.pollInterval, deadline) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrEmpty
		}
	}
}

// claim picks the oldest visible job whose photo has no older job, hides it
// for the visibility timeout and stamps a fresh receipt, in one transaction.
func (q *SQLiteQueue) claim(ctx context.Context) (*Delivery, error) {
	var delivery *Delivery
	err := q.db.WithTx(ctx, func(tx *sql.Tx) error {
		delivery = nil
		now := q.now().UTC()
		var (
			job         Job
			target      string
			enqueuedRaw string
			attempts    int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT j.id, j.photo_id, j.target, j.enqueued_at, j.attempts
             FROM jobs j
             WHERE j.visible_at <= ?
               AND NOT EXISTS (
                   SELECT 1 FROM jobs o
                   WHERE o.photo_id = j.photo_id
                     AND (o.enqueued_at < j.enqueued_at OR (o.enqueued_at = j.enqueued_at AND o.rowid < j.rowid))
               )
             ORDER BY j.enqueued_at ASC, j.rowid ASC
             LIMIT 1`,
			database.FormatTime(now),
		).Scan(&job.ID, &job.PhotoID, &target, &enqueuedRaw, &attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select visible job: %w", err)
		}
		job.Target = photos.Status(target)
		if enqueued, err := database.ParseTime(enqueuedRaw); err == nil {
			job.EnqueuedAt = enqueued
		}

		receipt := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET receipt = ?, attempts = attempts + 1, visible_at = ? WHERE id = ?`,
			receipt,
			database.FormatTime(now.Add(q.visibilityTimeout)),
			job.ID,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		delivery = &Delivery{Job: job, Receipt: receipt, Attempt: attempts + 1}
		return nil
	})
	return delivery, err
}

func (q *SQLiteQueue) Ack(ctx context.Context, delivery *Delivery) error {
	if delivery == nil {
		return nil
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM jobs WHERE id = ?`, delivery.ID); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "ack", err)
	}
	return nil
}

func (q *SQLiteQueue) Release(ctx context.Context, delivery *Delivery, delay time.Duration) error {
	if delivery == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	if _, err := q.db.Exec(ctx,
		`UPDATE jobs SET receipt = NULL, visible_at = ? WHERE id = ? AND receipt = ?`,
		database.FormatTime(q.now().UTC().Add(delay)),
		delivery.ID,
		delivery.Receipt,
	); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "release", err)
	}
	return nil
}

func (q *SQLiteQueue) Pending(ctx context.Context, photoID string) (bool, error) {
	ctx = database.EnsureContext(ctx)
	var count int
	if err := q.db.SQL().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM jobs WHERE photo_id = ?`, photoID,
	).Scan(&count); err != nil {
		return false, photos.Wrap(photos.ErrQueueUnavailable, "queue", "pending", err)
	}
	return count > 0, nil
}

func (q *SQLiteQueue) Depth(ctx context.Context) (Depth, error) {
	ctx = database.EnsureContext(ctx)
	now := database.FormatTime(q.now().UTC())
	var depth Depth
	if err := q.db.SQL().QueryRowContext(ctx,
		`SELECT
             COALESCE(SUM(CASE WHEN visible_at <= ? THEN 1 ELSE 0 END), 0),
             COALESCE(SUM(CASE WHEN visible_at > ? AND receipt IS NOT NULL THEN 1 ELSE 0 END), 0),
             COALESCE(SUM(CASE WHEN visible_at > ? AND receipt IS NULL THEN 1 ELSE 0 END), 0)
         FROM jobs`,
		now,
		now,
		now,
	).Scan(&depth.Ready, &depth.InFlight, &depth.Delayed); err != nil {
		return Depth{}, photos.Wrap(photos.ErrQueueUnavailable, "queue", "depth", err)
	}
	return depth, nil
}

func (q *SQLiteQueue) Ping(ctx context.Context) error {
	if err := q.db.Ping(ctx); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "ping", err)
	}
	return nil
}
