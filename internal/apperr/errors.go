// Package apperr defines the error taxonomy shared by the command handlers,
// the event store and the propagation pipeline.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrDuplicateKey is returned when a write collides with an existing unique key.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any write when command input is invalid.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

// ProcessingTimeoutError is returned by the completion waiter when some events
// were not announced in time.
type ProcessingTimeoutError struct {
	Pending []string
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %d event(s) to be processed: %s",
		len(e.Pending), strings.Join(e.Pending, ","))
}

// TransientError marks a storage, queue or broker availability failure.
// Sources retry these through redelivery or reconnect.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, or returns nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// FromStorage maps gorm errors onto the taxonomy. Duplicate keys become
// ErrDuplicateKey and missing records become ErrNotFound; everything else is
// returned unchanged.
func FromStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	}
	return err
}
