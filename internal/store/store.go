package store

import (
	"context"
	"time"

	"photoflow/internal/photos"
)

// NewPhoto describes a photo to insert in UPLOADED.
type NewPhoto struct {
	ID           string
	Filename     string
	OriginalName string
	StoragePath  string
}

// PhotoFilter selects a page of photos. A nil Status lists all photos.
type PhotoFilter struct {
	Status *photos.Status
	Page   int
	Limit  int
}

// EventFilter selects a page of events. An empty PhotoID selects the global
// feed, newest first; a PhotoID selects that photo's history, oldest first.
type EventFilter struct {
	PhotoID string
	Page    int
	Limit   int
}

// Store persists photo records and their append-only event log. Events are
// only ever written inside Create and Transition, in the same atomic step as
// the record change they describe.
type Store interface {
	// Create inserts the record in UPLOADED together with its PHOTO_CREATED event.
	Create(ctx context.Context, photo NewPhoto) (*photos.Photo, *photos.Event, error)
	// Transition moves a photo from expected to target if and only if its
	// current status equals expected, appending the matching event.
	Transition(ctx context.Context, id string, expected, target photos.Status, message string) (*photos.Photo, *photos.Event, error)
	Get(ctx context.Context, id string) (*photos.Photo, error)
	List(ctx context.Context, filter PhotoFilter) (photos.Page[*photos.Photo], error)
	IDsWithStatus(ctx context.Context, status photos.Status) ([]string, error)
	CountByStatus(ctx context.Context) (map[photos.Status]int, error)
	EventsForPhoto(ctx context.Context, id string) ([]photos.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) (photos.Page[photos.Event], error)
	LatestEvent(ctx context.Context, id string) (*photos.Event, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time. Stores default to time.Now.
type Clock func() time.Time

// eventTime keeps a photo's event timestamps non-decreasing even if the wall
// clock steps backwards between two transitions.
func eventTime(now, last time.Time) time.Time {
	if now.Before(last) {
		return last
	}
	return now
}

func buildEvent(id, photoID string, from *photos.Status, to photos.Status, eventType photos.EventType, message string, at time.Time) photos.Event {
	return photos.Event{
		ID:         id,
		PhotoID:    photoID,
		Type:       eventType,
		FromStatus: from,
		ToStatus:   to,
		Message:    message,
		CreatedAt:  at,
	}
}

// checkTransition validates the edge and the expected status against the
// current one, returning a TransitionError that describes the mismatch.
func checkTransition(id string, current, expected, target photos.Status) (photos.EventType, error) {
	eventType, ok := photos.EventTypeFor(expected, target)
	if !ok || current != expected {
		return "", &photos.TransitionError{PhotoID: id, Expected: expected, Actual: current, Requested: target}
	}
	return eventType, nil
}
