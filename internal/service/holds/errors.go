package holds

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/tix-reserve/internal/domain"
)

var (
	ErrSeatsConflict    = errors.New("seats already reserved")
	ErrSeatsNotFound    = errors.New("seats not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrHoldExpired      = errors.New("hold is expired")
	ErrRenewalLimit     = errors.New("hold cannot be renewed further")
	ErrNoSeats          = errors.New("no seats selected")
	ErrTooManySeats     = errors.New("too many seats in one hold")
	ErrSessionRequired  = errors.New("session id is required")
	ErrStoreUnavailable = errors.New("reservation store unavailable")
	ErrRateLimited      = errors.New("rate limited")
)

// SeatsUnavailableError names the requested seats that someone else holds
// or has booked, so the client can highlight them. Seats may be empty when
// the conflict was detected by the store's uniqueness guarantee alone.
type SeatsUnavailableError struct {
	Seats []domain.Seat
}

func (e *SeatsUnavailableError) Error() string {
	labels := make([]string, 0, len(e.Seats))
	for _, s := range e.Seats {
		labels = append(labels, s.Label())
	}
	return fmt.Sprintf("seats unavailable: [%s]", strings.Join(labels, ", "))
}

func (e *SeatsUnavailableError) Unwrap() error { return ErrSeatsConflict }

type UnknownSeatsError struct {
	SeatIDs []int64
}

func (e *UnknownSeatsError) Error() string {
	return fmt.Sprintf("seats not found: %v", e.SeatIDs)
}

func (e *UnknownSeatsError) Unwrap() error { return ErrSeatsNotFound }

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
