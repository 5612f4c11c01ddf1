package processing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"photoflow/internal/photos"
	"photoflow/internal/processing"
	"photoflow/internal/testsupport"
)

func TestSuccessRateExtremes(t *testing.T) {
	photo := &photos.Photo{ID: "p"}
	for _, tc := range []struct {
		rate float64
		want bool
	}{
		{1, true},
		{0, false},
	} {
		sim := processing.NewSimulator(0, 0, tc.rate, 7)
		for i := 0; i < 50; i++ {
			outcome, err := sim.Process(context.Background(), photo)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if outcome.Success != tc.want {
				t.Fatalf("rate %.1f: run %d success=%v", tc.rate, i, outcome.Success)
			}
			if !tc.want && outcome.Reason != processing.FailureReason {
				t.Fatalf("unexpected failure reason %q", outcome.Reason)
			}
		}
	}
}

func TestSuccessRateIsRoughlyHonoured(t *testing.T) {
	sim := processing.NewSimulator(0, 0, 0.9, 42)
	successes := 0
	const runs = 2000
	for i := 0; i < runs; i++ {
		outcome, _ := sim.Process(context.Background(), nil)
		if outcome.Success {
			successes++
		}
	}
	if ratio := float64(successes) / runs; ratio < 0.85 || ratio > 0.95 {
		t.Fatalf("success ratio %.3f outside expected band", ratio)
	}
}

func TestDelayStaysWithinBounds(t *testing.T) {
	sim := processing.NewSimulator(5*time.Millisecond, 15*time.Millisecond, 1, 3)
	for i := 0; i < 5; i++ {
		outcome, err := sim.Process(context.Background(), nil)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if outcome.Elapsed < 5*time.Millisecond {
			t.Fatalf("run finished early: %s", outcome.Elapsed)
		}
	}
}

func TestCancellationInterruptsDelay(t *testing.T) {
	sim := processing.NewSimulator(time.Minute, time.Minute, 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	if _, err := sim.Process(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatal("cancellation did not interrupt the delay")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDelays(10, 20), testsupport.WithSuccessRate(0.5))
	sim := processing.NewFromConfig(cfg)
	if sim.MinDelay != 10*time.Millisecond || sim.MaxDelay != 20*time.Millisecond || sim.SuccessRate != 0.5 {
		t.Fatalf("unexpected simulator %+v", sim)
	}
}
