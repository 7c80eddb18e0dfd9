package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrHoldExpired      = errors.New("hold expired")
	ErrSeatsNotFound    = errors.New("seats not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SeatConflictError lists the requested seats that already carry an active
// reservation. It matches ErrConflict under errors.Is.
type SeatConflictError struct {
	SeatIDs []int64
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats already reserved: %v", e.SeatIDs)
}

func (e *SeatConflictError) Unwrap() error { return ErrConflict }

// SeatsNotFoundError lists requested seat ids that do not belong to the event.
type SeatsNotFoundError struct {
	SeatIDs []int64
}

func (e *SeatsNotFoundError) Error() string {
	return fmt.Sprintf("seats not found: %v", e.SeatIDs)
}

func (e *SeatsNotFoundError) Unwrap() error { return ErrSeatsNotFound }

// IsRetryable reports whether err is a transient store failure that can be
// retried without double-applying anything.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
