package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by the extractor, normalizer, fetcher and stores.
var (
	// ErrFieldMissing means a required selector matched zero nodes.
	ErrFieldMissing = errors.New("field missing")
	// ErrFormat means a value was extracted but did not parse as its declared type.
	ErrFormat = errors.New("format error")
	// ErrNetwork is a transient transport failure.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is a fetch that exceeded its deadline.
	ErrTimeout = errors.New("fetch timeout")
	// ErrStoreUnavailable means the store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateKey is the store's unique-constraint signal. Stores translate it
	// into OutcomeSkipped; it never escapes InsertIfAbsent.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrQueueClosed is returned by Dequeue once the queue is drained and closed.
	ErrQueueClosed = errors.New("queue closed")
)

// FieldError ties an extraction or normalization failure to the field it hit.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// StatusError is a fetch that completed with a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// FieldOf returns the field name carried by err, or "" when err is not a field failure.
func FieldOf(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

// IsAssemblyError reports whether err is a per-item extraction failure.
func IsAssemblyError(err error) bool {
	return errors.Is(err, ErrFieldMissing) || errors.Is(err, ErrFormat)
}
