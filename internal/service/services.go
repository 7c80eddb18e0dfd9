package service

import (
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/kirinyoku/tix-reserve/internal/service/catalog"
	"github.com/kirinyoku/tix-reserve/internal/service/holds"
	"github.com/kirinyoku/tix-reserve/internal/service/query"
)

type Services struct {
	Catalog *catalog.Service
	Holds   *holds.Service
	Booking *booking.Service
	Query   *query.Service
}

type Config struct {
	Catalog catalog.Config
	Holds   holds.Config
	Booking booking.Config
}

// Deps are the optional collaborators of the services. Nil fields disable
// the matching feature: no cache, no rate limit, no notifications, no
// booking events.
type Deps struct {
	Cache     catalog.SeatCache
	Limiter   holds.Limiter
	Notifier  holds.Notifier
	Publisher booking.EventPublisher
}

func NewServices(
	store repository.Store,
	clk clock.Clock,
	deps Deps,
	logger *slog.Logger,
	cfg Config,
) (*Services, error) {
	const op = "service.NewServices"

	catalogSvc := catalog.New(store.Catalog(), deps.Cache, logger, cfg.Catalog)
	holdsSvc := holds.New(store, clk, deps.Limiter, deps.Notifier, logger, cfg.Holds)

	if cfg.Booking.HoldTTL <= 0 {
		cfg.Booking.HoldTTL = holdsSvc.Policy().DefaultTTL
	}

	var notifier booking.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	bookingSvc, err := booking.New(store, clk, deps.Publisher, notifier, logger, cfg.Booking)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Services{
		Catalog: catalogSvc,
		Holds:   holdsSvc,
		Booking: bookingSvc,
		Query:   query.New(catalogSvc, store.Reservations(), clk),
	}, nil
}
