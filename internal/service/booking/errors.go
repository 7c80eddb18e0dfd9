package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound             = errors.New("booking not found")
	ErrHoldNotFound                = errors.New("hold not found")
	ErrHoldExpired                 = errors.New("hold is expired")
	ErrInvalidCustomer             = errors.New("invalid customer details")
	ErrNotRefundable               = errors.New("booking cannot be refunded")
	ErrSeatUnavailableAfterPayment = errors.New("seat unavailable after payment")
	ErrStoreUnavailable            = errors.New("booking store unavailable")
	ErrInvalidConfig               = errors.New("invalid booking configuration")
)

// SeatUnavailableAfterPaymentError is returned when a payment succeeded but
// the seats it paid for could not be confirmed. The booking is left in
// requires_review and the caller must surface it, typically by refunding.
type SeatUnavailableAfterPaymentError struct {
	BookingID  uuid.UUID
	PaymentRef string
}

func (e *SeatUnavailableAfterPaymentError) Error() string {
	return fmt.Sprintf("seats of booking %s unavailable after payment %q", e.BookingID, e.PaymentRef)
}

func (e *SeatUnavailableAfterPaymentError) Unwrap() error { return ErrSeatUnavailableAfterPayment }
