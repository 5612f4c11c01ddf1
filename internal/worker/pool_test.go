package worker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"photoflow/internal/cache"
	"photoflow/internal/jobqueue"
	"photoflow/internal/lock"
	"photoflow/internal/logging"
	"photoflow/internal/photos"
	"photoflow/internal/processing"
	"photoflow/internal/store"
	"photoflow/internal/testsupport"
	"photoflow/internal/worker"
	"photoflow/internal/workflow"
)

type harness struct {
	engine *workflow.Engine
	queue  jobqueue.Queue
	locker lock.Locker
}

func newHarness(t *testing.T, queue jobqueue.Queue, locker lock.Locker) harness {
	t.Helper()
	st := store.NewSQLite(testsupport.MustOpenDatabase(t))
	views := cache.NewViews(cache.NewMemory(), time.Minute, time.Minute, logging.NewNop())
	engine := workflow.NewEngine(st, queue, workflow.WithViews(views), workflow.WithLogger(logging.NewNop()))
	return harness{engine: engine, queue: queue, locker: locker}
}

func (h harness) pool(processor processing.Processor, settings worker.Settings) *worker.Pool {
	return worker.NewPool(h.engine, h.queue, h.locker, processor, settings, logging.NewNop())
}

func (h harness) create(t *testing.T, count int) []string {
	t.Helper()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		photo, err := h.engine.CreatePhoto(context.Background(), workflow.CreateRequest{OriginalName: fmt.Sprintf("photo-%03d.jpg", i)})
		if err != nil {
			t.Fatalf("CreatePhoto: %v", err)
		}
		ids = append(ids, photo.ID)
	}
	return ids
}

func (h harness) waitForCounts(t *testing.T, want func(map[photos.Status]int) bool) map[photos.Status]int {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for {
		stats, err := h.engine.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if want(stats.Photos) {
			return stats.Photos
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for counts, last %+v", stats.Photos)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func fastSettings(workers int) worker.Settings {
	return worker.Settings{
		Workers:         workers,
		DequeueWait:     20 * time.Millisecond,
		ContentionDelay: time.Second,
		ErrorBackoff:    5 * time.Millisecond,
		LockTTL:         30 * time.Second,
		DrainTimeout:    5 * time.Second,
	}
}

func eventTypes(events []photos.Event) []photos.EventType {
	out := make([]photos.EventType, len(events))
	for i, event := range events {
		out[i] = event.Type
	}
	return out
}

func assertLifecycle(t *testing.T, h harness, ids []string, terminal photos.EventType) {
	t.Helper()
	want := []photos.EventType{photos.EventPhotoCreated, photos.EventStatusChanged, photos.EventProcessingStarted, terminal}
	for _, id := range ids {
		history, err := h.engine.PhotoHistory(context.Background(), id)
		if err != nil {
			t.Fatalf("PhotoHistory: %v", err)
		}
		got := eventTypes(history)
		if len(got) != len(want) {
			t.Fatalf("photo %s: events %v, want %v", id, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("photo %s: events %v, want %v", id, got, want)
			}
		}
	}
}

func TestPoolProcessesEveryPhotoToCompletion(t *testing.T) {
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	pool := h.pool(processing.NewSimulator(0, 0, 1, 1), fastSettings(4))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	ids := h.create(t, 100)
	h.waitForCounts(t, func(counts map[photos.Status]int) bool { return counts[photos.StatusCompleted] == 100 })
	pool.Stop()

	assertLifecycle(t, h, ids, photos.EventProcessingCompleted)
	if counters := pool.Counters(); counters.Completed != 100 || counters.Failed != 0 {
		t.Fatalf("unexpected counters %+v", counters)
	}
	if depth, _ := h.queue.Depth(context.Background()); depth.Total() != 0 {
		t.Fatalf("jobs left behind: %+v", depth)
	}
}

func TestPoolRecordsFailures(t *testing.T) {
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	pool := h.pool(processing.NewSimulator(0, 0, 0, 1), fastSettings(4))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	ids := h.create(t, 100)
	h.waitForCounts(t, func(counts map[photos.Status]int) bool { return counts[photos.StatusFailed] == 100 })
	pool.Stop()

	assertLifecycle(t, h, ids, photos.EventProcessingFailed)
	history, _ := h.engine.PhotoHistory(context.Background(), ids[0])
	if msg := history[len(history)-1].Message; msg != "Processing failed: "+processing.FailureReason {
		t.Fatalf("unexpected failure message %q", msg)
	}
}

func TestPoolOnSQLiteBackends(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	h := newHarness(t, jobqueue.NewSQLite(db, time.Minute, 5*time.Millisecond), lock.NewSQLite(db))
	pool := h.pool(processing.NewSimulator(0, 2*time.Millisecond, 1, 1), fastSettings(3))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	ids := h.create(t, 20)
	h.waitForCounts(t, func(counts map[photos.Status]int) bool { return counts[photos.StatusCompleted] == 20 })
	pool.Stop()
	assertLifecycle(t, h, ids, photos.EventProcessingCompleted)
}

func TestCrashedWorkerIsResumedAfterLockExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h := newHarness(t, jobqueue.NewMemory(time.Minute).WithClock(clock.Now), lock.NewMemory().WithClock(clock.Now))
	id := h.create(t, 1)[0]

	// Worker A takes the job and the lock, starts processing, then dies.
	if _, err := h.queue.Dequeue(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if _, ok, err := h.locker.TryAcquire(ctx, lock.PhotoKey(id), 30*time.Second); err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if _, err := h.engine.MarkProcessingStarted(ctx, id); err != nil {
		t.Fatalf("MarkProcessingStarted: %v", err)
	}

	pool := h.pool(processing.NewSimulator(0, 0, 1, 1), fastSettings(1))
	if result, err := pool.ProcessNext(ctx, 2); err != nil || result != worker.ResultIdle {
		t.Fatalf("job should be invisible before the timeout: result=%s err=%v", result, err)
	}

	clock.Advance(time.Minute)
	result, err := pool.ProcessNext(ctx, 2)
	if err != nil || result != worker.ResultCompleted {
		t.Fatalf("expected resumed completion, got result=%s err=%v", result, err)
	}

	photo, _ := h.engine.GetPhoto(ctx, id)
	if photo.Status != photos.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", photo.Status)
	}
	assertLifecycle(t, h, []string{id}, photos.EventProcessingCompleted)
	if _, ok, _ := h.locker.TryAcquire(ctx, lock.PhotoKey(id), time.Second); !ok {
		t.Fatal("lock still held after the resumed run")
	}
	if depth, _ := h.queue.Depth(ctx); depth.Total() != 0 {
		t.Fatalf("job not acknowledged: %+v", depth)
	}
}

func TestContendedJobIsReleasedAndRetried(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h := newHarness(t, jobqueue.NewMemory(time.Minute).WithClock(clock.Now), lock.NewMemory().WithClock(clock.Now))
	id := h.create(t, 1)[0]

	lease, ok, _ := h.locker.TryAcquire(ctx, lock.PhotoKey(id), 30*time.Second)
	if !ok {
		t.Fatal("could not take the lock")
	}

	pool := h.pool(processing.NewSimulator(0, 0, 1, 1), fastSettings(1))
	if result, err := pool.ProcessNext(ctx, 1); err != nil || result != worker.ResultContended {
		t.Fatalf("expected contention, got result=%s err=%v", result, err)
	}
	photo, _ := h.engine.CurrentPhoto(ctx, id)
	if photo.Status != photos.StatusQueued {
		t.Fatalf("contention changed the photo: %s", photo.Status)
	}
	if depth, _ := h.queue.Depth(ctx); depth.Delayed != 1 {
		t.Fatalf("expected the job delayed by the contention delay, got %+v", depth)
	}

	if err := h.locker.Release(ctx, lease); err != nil {
		t.Fatalf("Release: %v", err)
	}
	clock.Advance(time.Second)
	if result, err := pool.ProcessNext(ctx, 1); err != nil || result != worker.ResultCompleted {
		t.Fatalf("expected completion after the lock was freed, got result=%s err=%v", result, err)
	}
}

func TestJobForFinishedPhotoIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	id := h.create(t, 1)[0]
	pool := h.pool(processing.NewSimulator(0, 0, 1, 1), fastSettings(1))

	if result, _ := pool.ProcessNext(ctx, 1); result != worker.ResultCompleted {
		t.Fatalf("expected completion, got %s", result)
	}
	if _, err := h.queue.Enqueue(ctx, jobqueue.Job{PhotoID: id}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result, err := pool.ProcessNext(ctx, 1); err != nil || result != worker.ResultSkipped {
		t.Fatalf("expected duplicate job to be skipped, got result=%s err=%v", result, err)
	}
	assertLifecycle(t, h, []string{id}, photos.EventProcessingCompleted)

	if _, err := h.queue.Enqueue(ctx, jobqueue.Job{PhotoID: "missing"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result, _ := pool.ProcessNext(ctx, 1); result != worker.ResultSkipped {
		t.Fatalf("expected orphan job to be skipped, got %s", result)
	}
	if depth, _ := h.queue.Depth(ctx); depth.Total() != 0 {
		t.Fatalf("skipped jobs were not acknowledged: %+v", depth)
	}
}

// racingProcessor records a FAILED outcome through the engine while it runs,
// standing in for a second worker whose lease overlapped.
type racingProcessor struct {
	engine *workflow.Engine
}

func (r racingProcessor) Process(ctx context.Context, photo *photos.Photo) (processing.Outcome, error) {
	if _, err := r.engine.MarkProcessingResult(ctx, photo.ID, false, "overlapping worker"); err != nil {
		return processing.Outcome{}, err
	}
	return processing.Outcome{Success: true}, nil
}

func TestLosingTerminalRaceIsSwallowed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	id := h.create(t, 1)[0]
	pool := h.pool(racingProcessor{engine: h.engine}, fastSettings(1))

	result, err := pool.ProcessNext(ctx, 1)
	if err != nil || result != worker.ResultSkipped {
		t.Fatalf("expected the losing write to be skipped, got result=%s err=%v", result, err)
	}
	photo, _ := h.engine.CurrentPhoto(ctx, id)
	if photo.Status != photos.StatusFailed {
		t.Fatalf("first writer should win, got %s", photo.Status)
	}
	assertLifecycle(t, h, []string{id}, photos.EventProcessingFailed)
	if depth, _ := h.queue.Depth(ctx); depth.Total() != 0 {
		t.Fatalf("job not acknowledged: %+v", depth)
	}
}

func TestStopDrainsInFlightJobs(t *testing.T) {
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	pool := h.pool(processing.NewSimulator(50*time.Millisecond, 50*time.Millisecond, 1, 1), fastSettings(2))
	h.create(t, 6)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitForCounts(t, func(counts map[photos.Status]int) bool { return counts[photos.StatusProcessing] > 0 })
	pool.Stop()

	if pool.Running() {
		t.Fatal("pool still running after Stop")
	}
	stats, _ := h.engine.Stats(context.Background())
	if stats.Photos[photos.StatusProcessing] != 0 {
		t.Fatalf("in-flight photos were not drained: %+v", stats.Photos)
	}
	if stats.Photos[photos.StatusCompleted] == 0 {
		t.Fatalf("expected some completions, got %+v", stats.Photos)
	}
}

// blockingProcessor never finishes on its own.
type blockingProcessor struct{}

func (blockingProcessor) Process(ctx context.Context, _ *photos.Photo) (processing.Outcome, error) {
	<-ctx.Done()
	return processing.Outcome{}, ctx.Err()
}

func TestStopCancelsJobsAfterDrainTimeout(t *testing.T) {
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	settings := fastSettings(1)
	settings.DrainTimeout = 50 * time.Millisecond
	pool := h.pool(blockingProcessor{}, settings)
	id := h.create(t, 1)[0]
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitForCounts(t, func(counts map[photos.Status]int) bool { return counts[photos.StatusProcessing] == 1 })

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the drain timeout")
	}

	if pending, _ := h.queue.Pending(context.Background(), id); !pending {
		t.Fatal("interrupted job should stay unacknowledged")
	}
	if _, ok, _ := h.locker.TryAcquire(context.Background(), lock.PhotoKey(id), time.Second); !ok {
		t.Fatal("lock not released after cancellation")
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, jobqueue.NewMemory(time.Minute), lock.NewMemory())
	pool := h.pool(processing.NewSimulator(0, 0, 1, 1), fastSettings(1))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()
	if err := pool.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	settings := worker.SettingsFromConfig(cfg)
	if settings.Workers != 3 || settings.DequeueWait != 50*time.Millisecond || settings.LockTTL != cfg.LockTTL() {
		t.Fatalf("unexpected settings %+v", settings)
	}
}
