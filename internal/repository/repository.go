package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
)

type CatalogRepo interface {
	ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error)
	GetSeats(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error)
	PublishLayout(ctx context.Context, event domain.Event, seats []domain.Seat) (int64, error)
}

// ReservationRepo owns SeatReservation rows. TryHold and ConfirmHold are
// all-or-nothing: they either apply to every seat under the request or to
// none.
type ReservationRepo interface {
	TryHold(ctx context.Context, eventID int64, seatIDs []int64, sessionID string, ttl time.Duration) (domain.Hold, error)
	RenewHold(ctx context.Context, token uuid.UUID, ttl time.Duration) (domain.Hold, error)
	ReleaseHold(ctx context.Context, token uuid.UUID) error
	ConfirmHold(ctx context.Context, token uuid.UUID, bookingID uuid.UUID) error
	ReleaseBooked(ctx context.Context, bookingID uuid.UUID) (int64, error)
	GetHold(ctx context.Context, token uuid.UUID) (domain.Hold, error)
	ListActive(ctx context.Context, eventID int64) ([]domain.SeatReservation, error)
	SweepExpired(ctx context.Context, batchSize int) ([]domain.SweptHold, error)
}

type BookingRepo interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByHoldToken(ctx context.Context, token uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, payment domain.PaymentStatus, paymentRef string) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Booking, error)
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Catalog() CatalogRepo
	Reservations() ReservationRepo
	Bookings() BookingRepo
}

type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is a full backing store: a TxRunner whose repositories also work
// outside a transaction, each call then running in its own.
type Store interface {
	TxRunner
	Tx
}
