package jobqueue

import (
	"context"
	"errors"
	"time"

	"photoflow/internal/photos"
)

// Name identifies the processing queue in logs and status output.
const Name = "photo_processing"

// ErrEmpty reports that no job became visible within the dequeue wait.
var ErrEmpty = errors.New("queue empty")

// Job asks a worker to move a photo to Target.
type Job struct {
	ID         string        `json:"id"`
	PhotoID    string        `json:"photoId"`
	Target     photos.Status `json:"status"`
	EnqueuedAt time.Time     `json:"timestamp"`
}

// Delivery is a job handed to one worker. Receipt identifies this particular
// delivery; a redelivery after the visibility timeout gets a new receipt.
type Delivery struct {
	Job
	Receipt string
	Attempt int
}

// Depth summarizes the queue contents.
type Depth struct {
	Ready    int `json:"ready"`
	InFlight int `json:"inFlight"`
	Delayed  int `json:"delayed"`
}

// Total is the number of jobs not yet acknowledged.
func (d Depth) Total() int {
	return d.Ready + d.InFlight + d.Delayed
}

// Queue is an at-least-once job queue. A dequeued job stays hidden for the
// visibility timeout; if it is not acknowledged by then it is delivered
// again. Jobs for the same photo are delivered in enqueue order: a job is only
// claimable once every older job for its photo has been acknowledged.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (Job, error)
	// Dequeue blocks up to wait for a visible job and returns ErrEmpty when
	// none appears. It returns ctx.Err() when ctx ends first.
	Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error)
	// Ack removes the job. Acknowledging an already removed job is a no-op.
	Ack(ctx context.Context, delivery *Delivery) error
	// Release makes the job visible again after delay, provided the delivery
	// still owns it.
	Release(ctx context.Context, delivery *Delivery, delay time.Duration) error
	// Pending reports whether any unacknowledged job exists for photoID.
	Pending(ctx context.Context, photoID string) (bool, error)
	Depth(ctx context.Context) (Depth, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time. Queues default to time.Now.
type Clock func() time.Time

// waitFor sleeps for d or until ctx ends or deadline passes, whichever is
// first. It returns false when the caller should stop polling.
func waitFor(ctx context.Context, d time.Duration, deadline time.Time) bool {
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
