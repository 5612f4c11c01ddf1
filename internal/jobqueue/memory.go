package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/photos"
)

const memoryPollInterval = 5 * time.Millisecond

type memoryJob struct {
	job       Job
	visibleAt time.Time
	receipt   string
	attempts  int
}

// MemoryQueue is a process-local Queue. Waiters are woken on Enqueue and
// Release and otherwise poll, so visibility timeouts driven by an injected
// clock are noticed too.
type MemoryQueue struct {
	mu                sync.Mutex
	jobs              []*memoryJob
	visibilityTimeout time.Duration
	now               Clock
	notify            chan struct{}
}

// NewMemory returns an empty queue with the given visibility timeout.
func NewMemory(visibilityTimeout time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
		notify:            make(chan struct{}),
	}
}

// WithClock overrides the time source used for visibility decisions.
func (q *MemoryQueue) WithClock(now Clock) *MemoryQueue {
	if now != nil {
		q.now = now
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Target == "" {
		job.Target = photos.StatusProcessing
	}

	q.mu.Lock()
	now := q.now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	q.jobs = append(q.jobs, &memoryJob{job: job, visibleAt: now})
	q.broadcastLocked()
	q.mu.Unlock()
	return job, nil
}

// broadcastLocked wakes every waiting Dequeue.
func (q *MemoryQueue) broadcastLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.mu.Lock()
		delivery := q.claimLocked()
		notify := q.notify
		q.mu.Unlock()
		if delivery != nil {
			return delivery, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}
		if remaining > memoryPollInterval {
			remaining = memoryPollInterval
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// claimLocked scans jobs in enqueue order. The first job seen for a photo is
// that photo's head; only heads may be claimed.
func (q *MemoryQueue) claimLocked() *Delivery {
	now := q.now().UTC()
	seen := make(map[string]struct{}, len(q.jobs))
	for _, entry := range q.jobs {
		if _, blocked := seen[entry.job.PhotoID]; blocked {
			continue
		}
		seen[entry.job.PhotoID] = struct{}{}
		if entry.visibleAt.After(now) {
			continue
		}
		entry.receipt = uuid.NewString()
		entry.attempts++
		entry.visibleAt = now.Add(q.visibilityTimeout)
		return &Delivery{Job: entry.job, Receipt: entry.receipt, Attempt: entry.attempts}
	}
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, delivery *Delivery) error {
	if delivery == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.jobs {
		if entry.job.ID == delivery.ID {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			// The photo's next job may now be claimable.
			q.broadcastLocked()
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Release(_ context.Context, delivery *Delivery, delay time.Duration) error {
	if delivery == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.jobs {
		if entry.job.ID == delivery.ID && entry.receipt == delivery.Receipt {
			entry.receipt = ""
			entry.visibleAt = q.now().UTC().Add(delay)
			q.broadcastLocked()
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Pending(_ context.Context, photoID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.jobs {
		if entry.job.PhotoID == photoID {
			return true, nil
		}
	}
	return false, nil
}

func (q *MemoryQueue) Depth(_ context.Context) (Depth, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now().UTC()
	var depth Depth
	for _, entry := range q.jobs {
		switch {
		case !entry.visibleAt.After(now):
			depth.Ready++
		case entry.receipt != "":
			depth.InFlight++
		default:
			depth.Delayed++
		}
	}
	return depth, nil
}

func (q *MemoryQueue) Ping(context.Context) error {
	return nil
}
