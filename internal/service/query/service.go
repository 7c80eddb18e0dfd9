package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/kirinyoku/tix-reserve/internal/service/catalog"
	"github.com/samber/lo"
)

// SeatLister is the part of the catalog the query side reads.
type SeatLister interface {
	ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error)
}

// Service answers "what does the hall look like right now". Seat status is
// recomputed from the reservation rows on every call and never cached.
type Service struct {
	catalog      SeatLister
	reservations repository.ReservationRepo
	clock        clock.Clock
}

func New(catalog SeatLister, reservations repository.ReservationRepo, clk clock.Clock) *Service {
	return &Service{
		catalog:      catalog,
		reservations: reservations,
		clock:        clk,
	}
}

// SeatMap returns every seat of the event with its effective status at the
// current time.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//
// Returns:
//   - []domain.SeatWithStatus: seats ordered by row and number.
//   - error: query.ErrEventNotFound if the event has no published layout.
func (s *Service) SeatMap(ctx context.Context, eventID int64) ([]domain.SeatWithStatus, error) {
	const op = "service.query.SeatMap"

	seats, err := s.catalog.ListSeats(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	active, err := s.reservations.ListActive(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	now := s.clock.Now()
	bySeat := lo.GroupBy(active, func(r domain.SeatReservation) int64 { return r.SeatID })

	return lo.Map(seats, func(seat domain.Seat, _ int) domain.SeatWithStatus {
		return domain.SeatWithStatus{
			Seat:   seat,
			Status: domain.EffectiveStatus(bySeat[seat.ID], now),
		}
	}), nil
}

// Availability counts the seats of an event per effective status.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "service.query.Availability"

	seats, err := s.SeatMap(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	counts := &domain.EventCounts{Total: int64(len(seats))}
	for _, seat := range seats {
		switch seat.Status {
		case domain.SeatAvailable:
			counts.Available++
		case domain.SeatHeld:
			counts.Held++
		case domain.SeatBooked:
			counts.Booked++
		}
	}

	return counts, nil
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, catalog.ErrEventNotFound), errors.Is(err, repository.ErrNotFound):
		return ErrEventNotFound
	case repository.IsRetryable(err):
		return ErrStoreUnavailable
	}
	return err
}
