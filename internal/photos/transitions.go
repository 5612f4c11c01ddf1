package photos

import (
	"fmt"
	"time"
)

type edge struct {
	from Status
	to   Status
}

// transitions lists every legal edge and the event type it records. Creation
// (no previous status -> UPLOADED) is handled by the store insert and is not
// part of this table.
var transitions = map[edge]EventType{
	{from: StatusUploaded, to: StatusQueued}:      EventStatusChanged,
	{from: StatusQueued, to: StatusProcessing}:    EventProcessingStarted,
	{from: StatusProcessing, to: StatusCompleted}: EventProcessingCompleted,
	{from: StatusProcessing, to: StatusFailed}:    EventProcessingFailed,
}

// EventTypeFor returns the event recorded for the from -> to edge and whether
// the edge is legal.
func EventTypeFor(from, to Status) (EventType, bool) {
	eventType, ok := transitions[edge{from: from, to: to}]
	return eventType, ok
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	_, ok := EventTypeFor(from, to)
	return ok
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	var next []Status
	for _, candidate := range allStatuses {
		if CanTransition(s, candidate) {
			next = append(next, candidate)
		}
	}
	return next
}

// CreatedMessage is the audit message recorded when a photo is created.
func CreatedMessage(originalName string) string {
	return fmt.Sprintf("Photo uploaded: %s", originalName)
}

// DefaultMessage returns the audit message used when a caller does not supply
// one for the from -> to edge.
func DefaultMessage(from, to Status) string {
	switch {
	case from == StatusUploaded && to == StatusQueued:
		return "Photo queued for processing"
	case from == StatusQueued && to == StatusProcessing:
		return "Processing started"
	case to == StatusCompleted:
		return "Processing completed"
	case to == StatusFailed:
		return "Processing failed"
	default:
		return fmt.Sprintf("Status changed from %s to %s", from, to)
	}
}

// CompletedMessage describes a successful processing run.
func CompletedMessage(elapsed time.Duration) string {
	return fmt.Sprintf("Processing completed in %s", elapsed.Round(time.Millisecond))
}

// FailedMessage describes a failed processing run.
func FailedMessage(reason string) string {
	if reason == "" {
		return "Processing failed"
	}
	return fmt.Sprintf("Processing failed: %s", reason)
}
