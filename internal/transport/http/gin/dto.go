package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/samber/lo"
)

type CreateHoldRequest struct {
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,dive,required"`
	TTLSec  int     `json:"ttl_sec" binding:"gte=0"`
}

type RenewHoldRequest struct {
	TTLSec int `json:"ttl_sec" binding:"gte=0"`
}

type HoldResponse struct {
	HoldToken string    `json:"hold_token"`
	EventID   int64     `json:"event_id"`
	SeatIDs   []int64   `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
	Renewals  int       `json:"renewals"`
}

func toHoldResponse(h domain.Hold) HoldResponse {
	return HoldResponse{
		HoldToken: h.Token.String(),
		EventID:   h.EventID,
		SeatIDs:   h.SeatIDs,
		ExpiresAt: h.ExpiresAt,
		Renewals:  h.Renewals,
	}
}

type StartCheckoutRequest struct {
	HoldToken string `json:"hold_token" binding:"required,uuid"`
	Email     string `json:"email" binding:"required"`
	Name      string `json:"name"`
}

type PaymentCallbackRequest struct {
	BookingID  string `json:"booking_id" binding:"required,uuid"`
	Succeeded  bool   `json:"succeeded"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason"`
}

type PublishLayoutRequest struct {
	Title string      `json:"title" binding:"required"`
	Seats []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

type SeatInput struct {
	Row        string `json:"row" binding:"required"`
	Number     int    `json:"number" binding:"required,gt=0"`
	TicketType string `json:"ticket_type"`
	PriceCents int    `json:"price_cents" binding:"gte=0"`
}

func (r PublishLayoutRequest) seats() []domain.Seat {
	return lo.Map(r.Seats, func(s SeatInput, _ int) domain.Seat {
		return domain.Seat{
			Row:        s.Row,
			Number:     s.Number,
			TicketType: s.TicketType,
			PriceCents: s.PriceCents,
		}
	})
}

type PublishLayoutResponse struct {
	EventID int64 `json:"event_id"`
	Seats   int64 `json:"seats"`
}

type SeatRef struct {
	ID     int64  `json:"id"`
	Row    string `json:"row"`
	Number int    `json:"number"`
}

type ErrorResponse struct {
	Error     string     `json:"error"`
	Kind      string     `json:"kind,omitempty"`
	Seats     []SeatRef  `json:"seats,omitempty"`
	SeatIDs   []int64    `json:"seat_ids,omitempty"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
}

func toSeatRefs(seats []domain.Seat) []SeatRef {
	return lo.Map(seats, func(s domain.Seat, _ int) SeatRef {
		return SeatRef{ID: s.ID, Row: s.Row, Number: s.Number}
	})
}
