package poll

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an on-demand poll names an unregistered node.
	ErrNotFound = errors.New("node not found")

	// ErrTimeout is returned when an on-demand poll outlives the caller's
	// timeout. The underlying fetch keeps running and updates the cache.
	ErrTimeout = errors.New("poll still running")

	// ErrNotAvailable is returned by GetSafe before the first successful fetch.
	ErrNotAvailable = errors.New("value not yet available")

	// ErrStale is returned by GetSafe when the value is stale and stale reads
	// were not allowed.
	ErrStale = errors.New("value is stale")

	// ErrUnsupported is recorded against entries whose support predicate
	// rejects the current backend.
	ErrUnsupported = errors.New("metric not supported by backend")
)

// PanicError is recorded as an entry's error when its fetch function panics.
// The full stack is logged server-side under the same correlation id.
type PanicError struct {
	CorrelationID string
	Value         any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetch panic (correlation_id: %s)", e.CorrelationID)
}
