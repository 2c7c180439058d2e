package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
	ErrPersistence     = errors.New("persistence failure")
)

// persistence wraps a store error so callers can match ErrPersistence and the cause.
func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// QuotaExceededError reports an upload rejected by the storage ceiling.
type QuotaExceededError struct {
	CurrentUsed int64
	Limit       int64
	Available   int64
	FileSize    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: file %d bytes, available %d of %d", e.FileSize, e.Available, e.Limit)
}
