package photos_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"photoflow/internal/photos"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to photos.Status
		want     photos.EventType
		ok       bool
	}{
		{photos.StatusUploaded, photos.StatusQueued, photos.EventStatusChanged, true},
		{photos.StatusQueued, photos.StatusProcessing, photos.EventProcessingStarted, true},
		{photos.StatusProcessing, photos.StatusCompleted, photos.EventProcessingCompleted, true},
		{photos.StatusProcessing, photos.StatusFailed, photos.EventProcessingFailed, true},
		{photos.StatusUploaded, photos.StatusProcessing, "", false},
		{photos.StatusQueued, photos.StatusCompleted, "", false},
		{photos.StatusCompleted, photos.StatusQueued, "", false},
		{photos.StatusFailed, photos.StatusQueued, "", false},
		{photos.StatusCompleted, photos.StatusFailed, "", false},
		{photos.StatusQueued, photos.StatusQueued, "", false},
	}
	for _, tc := range tests {
		got, ok := photos.EventTypeFor(tc.from, tc.to)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("EventTypeFor(%s,%s) = (%q,%v), want (%q,%v)", tc.from, tc.to, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, status := range photos.AllStatuses() {
		next := photos.NextStatuses(status)
		if status.IsTerminal() && len(next) != 0 {
			t.Fatalf("terminal status %s has successors %v", status, next)
		}
		if !status.IsTerminal() && len(next) == 0 {
			t.Fatalf("non-terminal status %s has no successors", status)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if got, ok := photos.ParseStatus(" queued "); !ok || got != photos.StatusQueued {
		t.Fatalf("ParseStatus(queued) = %q, %v", got, ok)
	}
	if _, ok := photos.ParseStatus("archived"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := photos.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestStoredFilename(t *testing.T) {
	if got := photos.StoredFilename("abc", "Sunset.JPG"); got != "abc.jpg" {
		t.Fatalf("StoredFilename = %q", got)
	}
	if got := photos.StoredFilename("abc", "noext"); got != "abc" {
		t.Fatalf("StoredFilename without extension = %q", got)
	}
}

func TestTransitionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("engine: %w", &photos.TransitionError{
		PhotoID:   "p1",
		Expected:  photos.StatusQueued,
		Actual:    photos.StatusProcessing,
		Requested: photos.StatusProcessing,
	})
	if !errors.Is(err, photos.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var te *photos.TransitionError
	if !errors.As(err, &te) || te.Actual != photos.StatusProcessing {
		t.Fatalf("expected TransitionError with actual status, got %v", err)
	}
	if photos.IsInfrastructure(err) {
		t.Fatal("transition errors are not infrastructure failures")
	}
}

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := photos.Wrap(photos.ErrStoreUnavailable, "store", "transition", cause)
	if !errors.Is(err, photos.ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost marker or cause: %v", err)
	}
	if want := "store unavailable: store: transition: disk I/O error"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !photos.IsInfrastructure(err) {
		t.Fatal("expected infrastructure classification")
	}
}

func TestNewPage(t *testing.T) {
	page := photos.NewPage([]int{1, 2}, 45, 2, 20)
	if page.TotalPages != 3 || !page.HasNext || !page.HasPrev {
		t.Fatalf("unexpected page envelope: %+v", page)
	}
	empty := photos.NewPage[int](nil, 0, 1, 20)
	if empty.Items == nil || empty.TotalPages != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("unexpected empty page: %+v", empty)
	}
}

func TestNormalizePaging(t *testing.T) {
	page, limit := photos.NormalizePaging(0, 500)
	if page != 1 || limit != photos.MaxLimit {
		t.Fatalf("NormalizePaging(0,500) = %d,%d", page, limit)
	}
	page, limit = photos.NormalizePaging(3, 0)
	if page != 3 || limit != photos.DefaultLimit {
		t.Fatalf("NormalizePaging(3,0) = %d,%d", page, limit)
	}
}

func TestMessages(t *testing.T) {
	if got := photos.CreatedMessage("sunset.jpg"); got != "Photo uploaded: sunset.jpg" {
		t.Fatalf("CreatedMessage = %q", got)
	}
	if got := photos.CompletedMessage(2345 * time.Millisecond); got != "Processing completed in 2.345s" {
		t.Fatalf("CompletedMessage = %q", got)
	}
	if got := photos.FailedMessage("simulated error"); got != "Processing failed: simulated error" {
		t.Fatalf("FailedMessage = %q", got)
	}
}
