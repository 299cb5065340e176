package errorz

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrJobInProgress = errors.New("job already in progress")
	ErrInterrupted   = errors.New("batch interrupted")
	ErrLeaseLost     = errors.New("reminder claim lease lost")
)

// ValidationError reports malformed or missing scheduler input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransientDeliveryError is a failed mail send. It counts against the reminder's attempts.
type TransientDeliveryError struct {
	ReminderID string
	Err        error
}

func (e *TransientDeliveryError) Error() string {
	return fmt.Sprintf("delivery of reminder %s failed: %v", e.ReminderID, e.Err)
}

func (e *TransientDeliveryError) Unwrap() error {
	return e.Err
}

// StorageError aborts the current batch.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

func IsTransientDelivery(err error) bool {
	var d *TransientDeliveryError
	return errors.As(err, &d)
}
