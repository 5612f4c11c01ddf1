package logging

import (
	"context"
	"log/slog"
	"strconv"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPhotoID is the standardized structured logging key for photo identifiers.
	FieldPhotoID = "photo_id"
	// FieldJobID is the standardized structured logging key for queue job identifiers.
	FieldJobID = "job_id"
	// FieldWorkerID is the standardized structured logging key for worker numbers.
	FieldWorkerID = "worker_id"
	// FieldStatus is the standardized structured logging key for photo statuses.
	FieldStatus = "status"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	photoIDKey       contextKey = "photo_id"
	workerIDKey      contextKey = "worker_id"
	correlationIDKey contextKey = "correlation_id"
)

// WithPhotoID annotates ctx with the photo being worked on.
func WithPhotoID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, photoIDKey, id)
}

// PhotoIDFromContext extracts the photo identifier if present.
func PhotoIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(photoIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorkerID annotates ctx with the worker number.
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFromContext extracts the worker number if present.
func WorkerIDFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workerIDKey).(int)
	return v, ok
}

// WithCorrelationID annotates ctx with a correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := WorkerIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkerID, strconv.Itoa(id)))
	}
	if id, ok := PhotoIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhotoID, id))
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
