package photos

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrQueueUnavailable  = errors.New("queue unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrLockUnavailable   = errors.New("lock unavailable")
)

// TransitionError describes a rejected status change. It matches
// ErrInvalidTransition through errors.Is.
type TransitionError struct {
	PhotoID   string
	Expected  Status
	Actual    Status
	Requested Status
}

func (e *TransitionError) Error() string {
	if e.Actual != "" && e.Actual != e.Expected {
		return fmt.Sprintf("invalid transition for photo %s: expected %s but found %s (requested %s)",
			e.PhotoID, e.Expected, e.Actual, e.Requested)
	}
	return fmt.Sprintf("invalid transition for photo %s: %s -> %s is not allowed",
		e.PhotoID, e.Expected, e.Requested)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Wrap tags err with marker and a component/operation prefix so callers can
// classify failures with errors.Is. The marker should be one of the exported
// sentinels above.
func Wrap(marker error, component, operation string, err error) error {
	detail := buildDetail(component, operation)
	if marker == nil {
		marker = ErrStoreUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsInfrastructure reports whether err signals an unreachable backend rather
// than a domain rejection.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrQueueUnavailable) ||
		errors.Is(err, ErrCacheUnavailable) ||
		errors.Is(err, ErrLockUnavailable)
}

func buildDetail(component, operation string) string {
	parts := make([]string, 0, 2)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "backend failure"
	}
	return strings.Join(parts, ": ")
}
