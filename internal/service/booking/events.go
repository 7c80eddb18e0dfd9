package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
)

type EventType string

const (
	EventBookingCompleted            EventType = "BookingCompleted"
	EventBookingCancelled            EventType = "BookingCancelled"
	EventBookingExpired              EventType = "BookingExpired"
	EventBookingRefunded             EventType = "BookingRefunded"
	EventSeatUnavailableAfterPayment EventType = "SeatUnavailableAfterPayment"
)

// Event describes a booking transition for downstream consumers.
type Event struct {
	Type       EventType            `json:"type"`
	BookingID  uuid.UUID            `json:"booking_id"`
	EventID    int64                `json:"event_id"`
	HoldToken  uuid.UUID            `json:"hold_token"`
	Status     domain.BookingStatus `json:"status"`
	SeatIDs    []int64              `json:"seat_ids"`
	TotalCents int                  `json:"total_cents"`
	PaymentRef string               `json:"payment_ref,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
