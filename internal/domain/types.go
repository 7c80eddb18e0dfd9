package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatBooked    SeatStatus = "booked"
)

type ReservationState string

const (
	ReservationHeld      ReservationState = "held"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationReleased  ReservationState = "released"
	ReservationExpired   ReservationState = "expired"
)

type Event struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Seat is immutable once the event layout is published. Its identity is
// (EventID, Row, Number); ID is the store's surrogate key.
type Seat struct {
	ID         int64  `json:"id"`
	EventID    int64  `json:"event_id"`
	Row        string `json:"row"`
	Number     int    `json:"number"`
	TicketType string `json:"ticket_type"`
	PriceCents int    `json:"price_cents"`
}

func (s Seat) Label() string {
	return s.Row + "-" + strconv.Itoa(s.Number)
}

type SeatWithStatus struct {
	Seat
	Status SeatStatus `json:"status"`
}

type EventCounts struct {
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
	Booked    int64 `json:"booked"`
	Total     int64 `json:"total"`
}

// SeatReservation is one row per seat per hold attempt.
type SeatReservation struct {
	ID         int64
	EventID    int64
	SeatID     int64
	SessionID  string
	HoldToken  uuid.UUID
	BookingID  *uuid.UUID
	ReservedAt time.Time
	ExpiresAt  time.Time
	State      ReservationState
	Renewals   int
}

func (r SeatReservation) IsConfirmed() bool {
	return r.State == ReservationConfirmed
}

// IsActive reports whether the row still claims its seat at now. A held row
// stops being active at ExpiresAt whether or not the sweep has run.
func (r SeatReservation) IsActive(now time.Time) bool {
	switch r.State {
	case ReservationConfirmed:
		return true
	case ReservationHeld:
		return r.ExpiresAt.After(now)
	default:
		return false
	}
}

// EffectiveStatus projects the reservation rows of a single seat onto its
// display status.
func EffectiveStatus(rows []SeatReservation, now time.Time) SeatStatus {
	status := SeatAvailable
	for _, r := range rows {
		if !r.IsActive(now) {
			continue
		}
		if r.IsConfirmed() {
			return SeatBooked
		}
		status = SeatHeld
	}
	return status
}

// Hold is the aggregate of every reservation row sharing a token.
type Hold struct {
	Token      uuid.UUID        `json:"hold_token"`
	EventID    int64            `json:"event_id"`
	SessionID  string           `json:"session_id"`
	SeatIDs    []int64          `json:"seat_ids"`
	ReservedAt time.Time        `json:"reserved_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	Renewals   int              `json:"renewals"`
	State      ReservationState `json:"state"`
	BookingID  *uuid.UUID       `json:"booking_id,omitempty"`
}

// IsLive reports whether the hold can still be renewed or confirmed at now.
func (h Hold) IsLive(now time.Time) bool {
	return h.State == ReservationHeld && h.ExpiresAt.After(now)
}

// HoldFromRows folds the rows of one token into a Hold. rows must be
// non-empty and share a token.
func HoldFromRows(rows []SeatReservation) Hold {
	h := Hold{
		Token:      rows[0].HoldToken,
		EventID:    rows[0].EventID,
		SessionID:  rows[0].SessionID,
		ReservedAt: rows[0].ReservedAt,
		ExpiresAt:  rows[0].ExpiresAt,
		Renewals:   rows[0].Renewals,
		State:      rows[0].State,
		BookingID:  rows[0].BookingID,
	}
	for _, r := range rows {
		h.SeatIDs = append(h.SeatIDs, r.SeatID)
		if r.ExpiresAt.Before(h.ExpiresAt) {
			h.ExpiresAt = r.ExpiresAt
		}
		if r.State != h.State {
			h.State = mixedState(h.State, r.State)
		}
	}
	return h
}

// mixedState picks the state that matters most when rows disagree. Rows of
// one token move together, so this only happens if the store was edited by
// hand.
func mixedState(a, b ReservationState) ReservationState {
	rank := map[ReservationState]int{
		ReservationConfirmed: 3,
		ReservationReleased:  2,
		ReservationExpired:   1,
		ReservationHeld:      0,
	}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingExpired        BookingStatus = "expired"
	BookingRequiresReview BookingStatus = "requires_review"
)

func (s BookingStatus) IsTerminal() bool {
	return s != BookingPending
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

type BookingItem struct {
	SeatID     int64  `json:"seat_id"`
	Row        string `json:"row"`
	Number     int    `json:"number"`
	TicketType string `json:"ticket_type"`
	PriceCents int    `json:"price_cents"`
}

// Booking is the order-level aggregate. It references its seat rows through
// HoldToken and never owns them.
type Booking struct {
	ID            uuid.UUID     `json:"id"`
	EventID       int64         `json:"event_id"`
	HoldToken     uuid.UUID     `json:"hold_token"`
	SessionID     string        `json:"-"`
	CustomerEmail string        `json:"customer_email"`
	CustomerName  string        `json:"customer_name"`
	Items         []BookingItem `json:"items"`
	TotalCents    int           `json:"total_cents"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SweptHold describes a hold whose rows were moved to expired by the sweep.
type SweptHold struct {
	EventID   int64
	HoldToken uuid.UUID
	Seats     int64
}
