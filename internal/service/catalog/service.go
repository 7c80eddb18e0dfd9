package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrLayoutPublished = errors.New("layout already published")
	ErrInvalidLayout   = errors.New("invalid layout")
)

type Config struct {
	CacheTTL time.Duration
}

// SeatCache keeps published layouts close to the API.
type SeatCache interface {
	Seats(ctx context.Context, eventID int64, ttl time.Duration, load func(ctx context.Context) ([]domain.Seat, error)) ([]domain.Seat, error)
	InvalidateEvent(ctx context.Context, eventID int64) error
}

// Service serves the seat layout of events. Layouts never change after
// publication, so they are cached without invalidation on reservation
// changes.
type Service struct {
	repo  repository.CatalogRepo
	cache SeatCache
	log   *slog.Logger
	cfg   Config
}

// New creates a catalog service. cache may be nil.
func New(repo repository.CatalogRepo, cache SeatCache, logger *slog.Logger, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:  repo,
		cache: cache,
		log:   logger,
		cfg:   cfg,
	}
}

// ListSeats returns the seats of an event ordered by row and number.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//
// Returns:
//   - []domain.Seat: the published layout.
//   - error: catalog.ErrEventNotFound if the event has no layout.
func (s *Service) ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	const op = "service.catalog.ListSeats"

	load := func(ctx context.Context) ([]domain.Seat, error) {
		return s.repo.ListSeats(ctx, eventID)
	}

	var (
		seats []domain.Seat
		err   error
	)
	if s.cache != nil {
		seats, err = s.cache.Seats(ctx, eventID, s.cfg.CacheTTL, load)
	} else {
		seats, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

// GetSeats returns the seats of eventID among seatIDs. Unknown ids are
// silently dropped.
func (s *Service) GetSeats(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error) {
	const op = "service.catalog.GetSeats"

	seats, err := s.repo.GetSeats(ctx, eventID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return seats, nil
}

type Layout struct {
	EventID int64
	Title   string
	Seats   []domain.Seat
}

// PublishLayout stores the seats of a new event. Each event is published
// exactly once.
//
// Returns:
//   - int64: number of seats created.
//   - error: catalog.ErrInvalidLayout if the layout is empty or malformed.
//   - error: catalog.ErrLayoutPublished if the event already has a layout
//     or the layout repeats a row/number pair.
func (s *Service) PublishLayout(ctx context.Context, l Layout) (int64, error) {
	const op = "service.catalog.PublishLayout"

	if err := validateLayout(l); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	n, err := s.repo.PublishLayout(ctx, domain.Event{ID: l.EventID, Title: l.Title}, l.Seats)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrLayoutPublished)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, l.EventID); err != nil {
			s.log.Warn("failed to invalidate seat cache",
				slog.Int64("event_id", l.EventID),
				slog.Any("err", err),
			)
		}
	}

	return n, nil
}

func validateLayout(l Layout) error {
	if l.EventID <= 0 {
		return fmt.Errorf("%w: event id must be positive", ErrInvalidLayout)
	}
	if len(l.Seats) == 0 {
		return fmt.Errorf("%w: no seats", ErrInvalidLayout)
	}

	for i, seat := range l.Seats {
		switch {
		case strings.TrimSpace(seat.Row) == "":
			return fmt.Errorf("%w: seat %d has no row", ErrInvalidLayout, i)
		case seat.Number <= 0:
			return fmt.Errorf("%w: seat %d has non-positive number", ErrInvalidLayout, i)
		case seat.PriceCents < 0:
			return fmt.Errorf("%w: seat %d has negative price", ErrInvalidLayout, i)
		}
	}

	return nil
}
