package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-reserve/internal/service/holds"
)

type HoldSweeper interface {
	Sweep(ctx context.Context) (holds.SweepResult, error)
}

type CheckoutExpirer interface {
	ExpireAbandoned(ctx context.Context, limit int) (int, error)
}

type SweeperConfig struct {
	Interval time.Duration
	// CheckoutBatch bounds the abandoned bookings expired per run.
	CheckoutBatch int
}

// Sweeper periodically returns lapsed holds to the pool and expires
// bookings whose checkout was abandoned. Seat status never depends on it
// running: a lapsed hold stops counting at its expiry time.
type Sweeper struct {
	holds    HoldSweeper
	bookings CheckoutExpirer
	log      *slog.Logger
	cfg      SweeperConfig
}

func NewSweeper(h HoldSweeper, b CheckoutExpirer, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.CheckoutBatch <= 0 {
		cfg.CheckoutBatch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		holds:    h,
		bookings: b,
		log:      logger.With(slog.String("component", "sweeper")),
		cfg:      cfg,
	}
}

// Run sweeps on every tick until ctx is cancelled. Failed runs are logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", slog.Duration("interval", s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	res, err := s.holds.Sweep(ctx)
	if err != nil {
		s.log.Error("hold sweep failed", slog.Any("err", err))
		return err
	}
	if res.Holds > 0 {
		s.log.Info("expired holds swept", slog.Int("holds", res.Holds), slog.Int64("seats", res.Seats))
	}

	if s.bookings == nil {
		return nil
	}

	n, err := s.bookings.ExpireAbandoned(ctx, s.cfg.CheckoutBatch)
	if err != nil {
		s.log.Error("abandoned checkout expiry failed", slog.Any("err", err))
		return err
	}
	if n > 0 {
		s.log.Info("abandoned checkouts expired", slog.Int("bookings", n))
	}

	return nil
}
