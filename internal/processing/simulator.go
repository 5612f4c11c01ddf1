package processing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"photoflow/internal/config"
	"photoflow/internal/photos"
)

// FailureReason is the detail recorded when a simulated run fails.
const FailureReason = "simulated processing error"

// Outcome is the result of one processing run. A failed run is a modeled
// result, not an error.
type Outcome struct {
	Success bool
	Elapsed time.Duration
	Reason  string
}

// Processor performs the work on a photo.
type Processor interface {
	// Process returns an error only when ctx ends before the work does.
	Process(ctx context.Context, photo *photos.Photo) (Outcome, error)
}

// Simulator stands in for real image processing: it waits a random delay in
// [MinDelay, MaxDelay] and succeeds with probability SuccessRate.
type Simulator struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	SuccessRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator builds a simulator. A zero seed draws one from the clock.
func NewSimulator(minDelay, maxDelay time.Duration, successRate float64, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Simulator{
		MinDelay:    minDelay,
		MaxDelay:    maxDelay,
		SuccessRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// NewFromConfig builds a simulator from the [processing] section.
func NewFromConfig(cfg *config.Config) *Simulator {
	return NewSimulator(cfg.MinDelay(), cfg.MaxDelay(), cfg.Processing.SuccessRate, cfg.Processing.Seed)
}

func (s *Simulator) Process(ctx context.Context, _ *photos.Photo) (Outcome, error) {
	delay, success := s.draw()
	started := time.Now()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Elapsed: time.Since(started)}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Success: success, Elapsed: time.Since(started)}
	if !success {
		outcome.Reason = FailureReason
	}
	return outcome, nil
}

// draw picks the delay and the result up front under the lock; rand.Rand is
// not safe for concurrent use.
func (s *Simulator) draw() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.MinDelay
	if span := s.MaxDelay - s.MinDelay; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span) + 1))
	}
	return delay, s.rng.Float64() < s.SuccessRate
}
