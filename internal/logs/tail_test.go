package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"photoflow/internal/logs"
)

const consoleLog = `2026-01-02 10:00:00 INFO [workflow] Photo 11111111 – photo created
    - event_type: PHOTO_CREATED
2026-01-02 10:00:01 INFO [worker] Worker 1 · Photo 22222222 – processing started
2026-01-02 10:00:02 WARN [worker] Worker 2 · Photo 11111111 – resuming interrupted processing
    - error_hint: a previous worker stopped mid-job
    - impact: photo is processed again
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photoflow.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastRecords(t *testing.T) {
	path := writeLog(t, consoleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	want := []string{
		"2026-01-02 10:00:01 INFO [worker] Worker 1 · Photo 22222222 – processing started",
		"2026-01-02 10:00:02 WARN [worker] Worker 2 · Photo 11111111 – resuming interrupted processing",
		"    - error_hint: a previous worker stopped mid-job",
		"    - impact: photo is processed again",
	}
	if !reflect.DeepEqual(result.Lines, want) {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != int64(len(consoleLog)) {
		t.Fatalf("offset = %d, want %d", result.Offset, len(consoleLog))
	}
}

func TestTailMatchKeepsWholeRecords(t *testing.T) {
	path := writeLog(t, consoleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: -1,
		Limit:  10,
		Match:  []string{"Photo 11111111"},
	})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 5 {
		t.Fatalf("expected both records for the photo with attributes, got %#v", result.Lines)
	}
	if result.Lines[1] != "    - event_type: PHOTO_CREATED" {
		t.Fatalf("attribute line not kept with its record: %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail missing file: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", result.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestTailRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "fresh\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 1 << 20})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "fresh" {
		t.Fatalf("expected to re-read truncated file, got %#v", result.Lines)
	}
}
