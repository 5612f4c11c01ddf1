package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/photos"
)

// MemoryStore is a process-local Store. A single mutex guards records and
// events so each Create/Transition is atomic.
type MemoryStore struct {
	mu     sync.Mutex
	now    Clock
	photos map[string]*photos.Photo
	events []photos.Event
	seq    int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{now: time.Now, photos: make(map[string]*photos.Photo)}
}

// WithClock overrides the time source used for timestamps.
func (m *MemoryStore) WithClock(now Clock) *MemoryStore {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MemoryStore) Create(_ context.Context, photo NewPhoto) (*photos.Photo, *photos.Event, error) {
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	if photo.Filename == "" {
		photo.Filename = photos.StoredFilename(photo.ID, photo.OriginalName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.photos[photo.ID]; exists {
		return nil, nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "create photo",
			fmt.Errorf("photo %s already exists", photo.ID))
	}

	now := m.now().UTC()
	created := &photos.Photo{
		ID:           photo.ID,
		Filename:     photo.Filename,
		OriginalName: photo.OriginalName,
		Status:       photos.StatusUploaded,
		StoragePath:  photo.StoragePath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	event := m.appendLocked(buildEvent(uuid.NewString(), photo.ID, nil, photos.StatusUploaded,
		photos.EventPhotoCreated, photos.CreatedMessage(photo.OriginalName), now))
	m.photos[photo.ID] = created
	return created.Clone(), &event, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, expected, target photos.Status, message string) (*photos.Photo, *photos.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.photos[id]
	if !ok {
		return nil, nil, fmt.Errorf("photo %s: %w", id, photos.ErrNotFound)
	}
	eventType, err := checkTransition(id, current.Status, expected, target)
	if err != nil {
		return nil, nil, err
	}
	if message == "" {
		message = photos.DefaultMessage(expected, target)
	}

	at := eventTime(m.now().UTC(), current.UpdatedAt)
	current.Status = target
	current.UpdatedAt = at
	if target.IsTerminal() {
		processed := at
		current.ProcessedAt = &processed
	}
	event := m.appendLocked(buildEvent(uuid.NewString(), id, expected.Ptr(), target, eventType, message, at))
	return current.Clone(), &event, nil
}

func (m *MemoryStore) appendLocked(event photos.Event) photos.Event {
	m.seq++
	event.Seq = m.seq
	m.events = append(m.events, event)
	return event
}

func (m *MemoryStore) Get(_ context.Context, id string) (*photos.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	photo, ok := m.photos[id]
	if !ok {
		return nil, fmt.Errorf("photo %s: %w", id, photos.ErrNotFound)
	}
	return photo.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, filter PhotoFilter) (photos.Page[*photos.Photo], error) {
	page, limit := photos.NormalizePaging(filter.Page, filter.Limit)

	m.mu.Lock()
	matched := make([]*photos.Photo, 0, len(m.photos))
	for _, photo := range m.photos {
		if filter.Status != nil && photo.Status != *filter.Status {
			continue
		}
		matched = append(matched, photo.Clone())
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return photos.NewPage(paginate(matched, page, limit), len(matched), page, limit), nil
}

func (m *MemoryStore) IDsWithStatus(_ context.Context, status photos.Status) ([]string, error) {
	m.mu.Lock()
	matched := make([]*photos.Photo, 0)
	for _, photo := range m.photos {
		if photo.Status == status {
			matched = append(matched, photo)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	ids := make([]string, 0, len(matched))
	for _, photo := range matched {
		ids = append(ids, photo.ID)
	}
	return ids, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[photos.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[photos.Status]int, len(photos.AllStatuses()))
	for _, photo := range m.photos {
		counts[photo.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) EventsForPhoto(_ context.Context, id string) ([]photos.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventsForLocked(id), nil
}

// eventsForLocked returns id's events in append order, which is also
// (created_at, seq) order since event times never decrease per photo.
func (m *MemoryStore) eventsForLocked(id string) []photos.Event {
	var events []photos.Event
	for _, event := range m.events {
		if event.PhotoID == id {
			events = append(events, event)
		}
	}
	return events
}

func (m *MemoryStore) ListEvents(_ context.Context, filter EventFilter) (photos.Page[photos.Event], error) {
	page, limit := photos.NormalizePaging(filter.Page, filter.Limit)

	m.mu.Lock()
	var events []photos.Event
	if filter.PhotoID != "" {
		events = m.eventsForLocked(filter.PhotoID)
	} else {
		events = make([]photos.Event, len(m.events))
		copy(events, m.events)
	}
	m.mu.Unlock()

	if filter.PhotoID == "" {
		sort.SliceStable(events, func(i, j int) bool {
			if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
				return events[i].CreatedAt.After(events[j].CreatedAt)
			}
			return events[i].Seq > events[j].Seq
		})
	}
	return photos.NewPage(paginate(events, page, limit), len(events), page, limit), nil
}

func (m *MemoryStore) LatestEvent(_ context.Context, id string) (*photos.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].PhotoID == id {
			event := m.events[i]
			return &event, nil
		}
	}
	return nil, fmt.Errorf("events for photo %s: %w", id, photos.ErrNotFound)
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func paginate[T any](items []T, page, limit int) []T {
	offset := photos.Offset(page, limit)
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
