package photos

import (
	"path/filepath"
	"strings"
	"time"
)

// Status represents the lifecycle of a photo.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// EventType classifies an entry in the event log.
type EventType string

const (
	EventPhotoCreated        EventType = "PHOTO_CREATED"
	EventStatusChanged       EventType = "STATUS_CHANGED"
	EventProcessingStarted   EventType = "PROCESSING_STARTED"
	EventProcessingCompleted EventType = "PROCESSING_COMPLETED"
	EventProcessingFailed    EventType = "PROCESSING_FAILED"
)

// Photo is the current-state record of an uploaded photo.
type Photo struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalName"`
	Status       Status     `json:"status"`
	StoragePath  string     `json:"storagePath"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}

// Event is an immutable entry in a photo's audit trail.
type Event struct {
	ID         string    `json:"id"`
	PhotoID    string    `json:"photoId"`
	Type       EventType `json:"type"`
	FromStatus *Status   `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	// Seq orders events that share a timestamp. It is assigned by the store.
	Seq int64 `json:"-"`
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Valid reports whether the status is one of the five defined values.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// IsTerminal reports whether no further automatic transitions follow s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Ptr returns a pointer to a copy of s, used for nullable FromStatus values.
func (s Status) Ptr() *Status {
	v := s
	return &v
}

// IsTerminal reports whether the photo has reached COMPLETED or FAILED.
func (p Photo) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// StoredFilename derives the on-disk filename for a photo from its identifier
// and the extension of the name it was uploaded with.
func StoredFilename(id, originalName string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(originalName)))
	return id + ext
}

// Clone returns a deep copy of the photo.
func (p *Photo) Clone() *Photo {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}
