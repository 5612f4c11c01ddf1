package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/database"
	"photoflow/internal/photos"
)

const (
	photoColumns = "id, filename, original_name, status, storage_path, created_at, updated_at, processed_at"
	eventColumns = "seq, id, photo_id, type, from_status, to_status, message, created_at"
)

// SQLiteStore keeps photos and events in the shared SQLite database.
type SQLiteStore struct {
	db  *database.DB
	now Clock
}

// NewSQLite returns a store backed by db.
func NewSQLite(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (s *SQLiteStore) WithClock(now Clock) *SQLiteStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SQLiteStore) Create(ctx context.Context, photo NewPhoto) (*photos.Photo, *photos.Event, error) {
	ctx = database.EnsureContext(ctx)
	if photo.ID == "" {
		photo.ID = uuid.NewString()
	}
	if photo.Filename == "" {
		photo.Filename = photos.StoredFilename(photo.ID, photo.OriginalName)
	}
	now := s.now().UTC()
	created := &photos.Photo{
		ID:           photo.ID,
		Filename:     photo.Filename,
		OriginalName: photo.OriginalName,
		Status:       photos.StatusUploaded,
		StoragePath:  photo.StoragePath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	event := buildEvent(uuid.NewString(), photo.ID, nil, photos.StatusUploaded, photos.EventPhotoCreated,
		photos.CreatedMessage(photo.OriginalName), now)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photos (`+photoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
			created.ID,
			created.Filename,
			created.OriginalName,
			created.Status,
			created.StoragePath,
			database.FormatTime(now),
			database.FormatTime(now),
		); err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		seq, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}
		event.Seq = seq
		return nil
	})
	if err != nil {
		return nil, nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "create photo", err)
	}
	return created, &event, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, id string, expected, target photos.Status, message string) (*photos.Photo, *photos.Event, error) {
	ctx = database.EnsureContext(ctx)
	var (
		updated *photos.Photo
		event   photos.Event
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := scanPhoto(tx.QueryRowContext(ctx,
			`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("photo %s: %w", id, photos.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load photo: %w", err)
		}
		eventType, err := checkTransition(id, current.Status, expected, target)
		if err != nil {
			return err
		}
		if message == "" {
			message = photos.DefaultMessage(expected, target)
		}

		at := eventTime(s.now().UTC(), current.UpdatedAt)
		var processedAt *time.Time
		if target.IsTerminal() {
			processedAt = &at
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE photos SET status = ?, updated_at = ?, processed_at = ? WHERE id = ? AND status = ?`,
			target,
			database.FormatTime(at),
			database.NullableTime(processedAt),
			id,
			expected,
		)
		if err != nil {
			return fmt.Errorf("update photo status: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if rows == 0 {
			return &photos.TransitionError{PhotoID: id, Expected: expected, Requested: target}
		}

		event = buildEvent(uuid.NewString(), id, expected.Ptr(), target, eventType, message, at)
		seq, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}
		event.Seq = seq

		current.Status = target
		current.UpdatedAt = at
		current.ProcessedAt = processedAt
		updated = current
		return nil
	})
	if err != nil {
		if errors.Is(err, photos.ErrInvalidTransition) || errors.Is(err, photos.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "transition", err)
	}
	return updated, &event, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event photos.Event) (int64, error) {
	var from any
	if event.FromStatus != nil {
		from = string(*event.FromStatus)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO photo_events (id, photo_id, type, from_status, to_status, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.PhotoID,
		event.Type,
		from,
		event.ToStatus,
		event.Message,
		database.FormatTime(event.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event seq: %w", err)
	}
	return seq, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*photos.Photo, error) {
	ctx = database.EnsureContext(ctx)
	photo, err := scanPhoto(s.db.SQL().QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s: %w", id, photos.ErrNotFound)
	}
	if err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "get photo", err)
	}
	return photo, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter PhotoFilter) (photos.Page[*photos.Photo], error) {
	ctx = database.EnsureContext(ctx)
	page, limit := photos.NormalizePaging(filter.Page, filter.Limit)

	where := ""
	var args []any
	if filter.Status != nil {
		where = " WHERE status = ?"
		args = append(args, *filter.Status)
	}

	var total int
	if err := s.db.SQL().QueryRowContext(ctx, `SELECT COUNT(1) FROM photos`+where, args...).Scan(&total); err != nil {
		return photos.Page[*photos.Photo]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "count photos", err)
	}

	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT `+photoColumns+` FROM photos`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, photos.Offset(page, limit))...,
	)
	if err != nil {
		return photos.Page[*photos.Photo]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "list photos", err)
	}
	defer rows.Close()

	var items []*photos.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return photos.Page[*photos.Photo]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "scan photo", err)
		}
		items = append(items, photo)
	}
	if err := rows.Err(); err != nil {
		return photos.Page[*photos.Photo]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "list photos", err)
	}
	return photos.NewPage(items, total, page, limit), nil
}

func (s *SQLiteStore) IDsWithStatus(ctx context.Context, status photos.Status) ([]string, error) {
	ctx = database.EnsureContext(ctx)
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT id FROM photos WHERE status = ? ORDER BY created_at ASC, id ASC`, status)
	if err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "ids with status", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "ids with status", err)
	}
	return ids, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[photos.Status]int, error) {
	ctx = database.EnsureContext(ctx)
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT status, COUNT(1) FROM photos GROUP BY status`)
	if err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "count by status", err)
	}
	defer rows.Close()

	counts := make(map[photos.Status]int, len(photos.AllStatuses()))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "scan count", err)
		}
		counts[photos.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "count by status", err)
	}
	return counts, nil
}

func (s *SQLiteStore) EventsForPhoto(ctx context.Context, id string) ([]photos.Event, error) {
	ctx = database.EnsureContext(ctx)
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT `+eventColumns+` FROM photo_events WHERE photo_id = ? ORDER BY created_at ASC, seq ASC`, id)
	if err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "events for photo", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) (photos.Page[photos.Event], error) {
	ctx = database.EnsureContext(ctx)
	page, limit := photos.NormalizePaging(filter.Page, filter.Limit)

	where := ""
	order := " ORDER BY created_at DESC, seq DESC"
	var args []any
	if filter.PhotoID != "" {
		where = " WHERE photo_id = ?"
		order = " ORDER BY created_at ASC, seq ASC"
		args = append(args, filter.PhotoID)
	}

	var total int
	if err := s.db.SQL().QueryRowContext(ctx, `SELECT COUNT(1) FROM photo_events`+where, args...).Scan(&total); err != nil {
		return photos.Page[photos.Event]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "count events", err)
	}

	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT `+eventColumns+` FROM photo_events`+where+order+` LIMIT ? OFFSET ?`,
		append(args, limit, photos.Offset(page, limit))...,
	)
	if err != nil {
		return photos.Page[photos.Event]{}, photos.Wrap(photos.ErrStoreUnavailable, "store", "list events", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return photos.Page[photos.Event]{}, err
	}
	return photos.NewPage(events, total, page, limit), nil
}

func (s *SQLiteStore) LatestEvent(ctx context.Context, id string) (*photos.Event, error) {
	ctx = database.EnsureContext(ctx)
	event, err := scanEvent(s.db.SQL().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM photo_events WHERE photo_id = ? ORDER BY created_at DESC, seq DESC LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("events for photo %s: %w", id, photos.ErrNotFound)
	}
	if err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "latest event", err)
	}
	return &event, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return photos.Wrap(photos.ErrStoreUnavailable, "store", "ping", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(scanner rowScanner) (*photos.Photo, error) {
	var (
		photo        photos.Photo
		status       string
		storagePath  sql.NullString
		createdRaw   string
		updatedRaw   string
		processedRaw sql.NullString
	)
	if err := scanner.Scan(
		&photo.ID,
		&photo.Filename,
		&photo.OriginalName,
		&status,
		&storagePath,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}
	photo.Status = photos.Status(status)
	photo.StoragePath = storagePath.String
	if created, err := database.ParseTime(createdRaw); err == nil {
		photo.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		photo.UpdatedAt = updated
	}
	if processedRaw.Valid {
		if processed, err := database.ParseTime(processedRaw.String); err == nil {
			photo.ProcessedAt = &processed
		}
	}
	return &photo, nil
}

func scanEvent(scanner rowScanner) (photos.Event, error) {
	var (
		event      photos.Event
		eventType  string
		fromStatus sql.NullString
		toStatus   string
		createdRaw string
	)
	if err := scanner.Scan(
		&event.Seq,
		&event.ID,
		&event.PhotoID,
		&eventType,
		&fromStatus,
		&toStatus,
		&event.Message,
		&createdRaw,
	); err != nil {
		return photos.Event{}, err
	}
	event.Type = photos.EventType(eventType)
	event.ToStatus = photos.Status(toStatus)
	if fromStatus.Valid {
		event.FromStatus = photos.Status(fromStatus.String).Ptr()
	}
	if created, err := database.ParseTime(createdRaw); err == nil {
		event.CreatedAt = created
	}
	return event, nil
}

func collectEvents(rows *sql.Rows) ([]photos.Event, error) {
	var events []photos.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "scan event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, photos.Wrap(photos.ErrStoreUnavailable, "store", "read events", err)
	}
	return events, nil
}
