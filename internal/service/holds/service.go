package holds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/metrics"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/kirinyoku/tix-reserve/internal/retry"
	"github.com/samber/lo"
)

type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
	// MaxHoldLifetime bounds ReservedAt+lifetime; renewals never extend a
	// hold past it.
	MaxHoldLifetime time.Duration
	MaxRenewals     int
	MaxSeatsPerHold int

	SweepBatchSize  int
	SweepMaxBatches int

	Retry retry.Config
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Minute
	}
	if c.MinTTL <= 0 {
		c.MinTTL = 30 * time.Second
	}
	if c.MaxTTL <= 0 || c.MaxTTL < c.MinTTL {
		c.MaxTTL = 15 * time.Minute
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		c.DefaultTTL = c.MaxTTL
	}
	if c.MaxHoldLifetime <= 0 {
		c.MaxHoldLifetime = 30 * time.Minute
	}
	if c.MaxRenewals < 0 {
		c.MaxRenewals = 0
	}
	if c.MaxSeatsPerHold <= 0 {
		c.MaxSeatsPerHold = 10
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 500
	}
	if c.SweepMaxBatches <= 0 {
		c.SweepMaxBatches = 20
	}
	return c
}

// Limiter throttles hold requests per scope, typically a session or a
// client address.
type Limiter interface {
	Allow(ctx context.Context, scope string) (bool, time.Duration, error)
}

// Notifier is told about seat status changes after they are committed.
type Notifier interface {
	PublishSeatsChanged(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error
}

type Service struct {
	store    repository.Store
	clock    clock.Clock
	limiter  Limiter
	notifier Notifier
	retrier  *retry.Retrier
	log      *slog.Logger
	cfg      Config
}

// New creates the hold manager. limiter and notifier may be nil.
func New(
	store repository.Store,
	clk clock.Clock,
	limiter Limiter,
	notifier Notifier,
	logger *slog.Logger,
	cfg Config,
) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:    store,
		clock:    clk,
		limiter:  limiter,
		notifier: notifier,
		log:      logger,
		cfg:      cfg,
	}
	s.retrier = retry.New(cfg.Retry, retryableHoldErr, func(attempt int, err error, next time.Duration) {
		metrics.StoreRetries.WithLabelValues("holds").Inc()
		s.log.Debug("retrying hold operation", slog.Int("attempt", attempt), slog.Any("err", err))
	})

	return s
}

// Policy exposes the effective configuration after defaults.
func (s *Service) Policy() Config { return s.cfg }

// retryableHoldErr also retries a bare conflict: it comes from the unique
// index backstop and the next attempt will name the conflicting seats.
func retryableHoldErr(err error) bool {
	if repository.IsRetryable(err) {
		return true
	}
	var seatConflict *repository.SeatConflictError
	return errors.Is(err, repository.ErrConflict) && !errors.As(err, &seatConflict)
}

type Request struct {
	EventID   int64
	SessionID string
	SeatIDs   []int64
	// TTL of zero selects the default.
	TTL time.Duration
	// RateKey scopes rate limiting; empty disables it.
	RateKey string
}

// Request places a hold on every requested seat or on none of them.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: event, session and seats to hold.
//
// Returns:
//   - domain.Hold: the new hold.
//   - error: *holds.SeatsUnavailableError (holds.ErrSeatsConflict) naming seats that are taken.
//   - error: *holds.UnknownSeatsError or holds.ErrEventNotFound for bad ids.
//   - error: *holds.RateLimitedError if the caller is throttled.
//   - error: holds.ErrStoreUnavailable once retries are exhausted.
func (s *Service) Request(ctx context.Context, req Request) (domain.Hold, error) {
	const op = "service.holds.Request"

	seatIDs := lo.Uniq(req.SeatIDs)
	switch {
	case req.SessionID == "":
		return domain.Hold{}, fmt.Errorf("%s:%w", op, ErrSessionRequired)
	case len(seatIDs) == 0:
		return domain.Hold{}, fmt.Errorf("%s:%w", op, ErrNoSeats)
	case len(seatIDs) > s.cfg.MaxSeatsPerHold:
		return domain.Hold{}, fmt.Errorf("%s:%w", op, ErrTooManySeats)
	}

	if s.limiter != nil && req.RateKey != "" {
		ok, retryAfter, err := s.limiter.Allow(ctx, req.RateKey)
		switch {
		case err != nil:
			s.log.Warn("rate limiter unavailable, allowing request", slog.Any("err", err))
		case !ok:
			metrics.HoldRequests.WithLabelValues("rate_limited").Inc()
			return domain.Hold{}, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: retryAfter})
		}
	}

	ttl := s.clampTTL(req.TTL)

	var hold domain.Hold
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		h, err := s.store.Reservations().TryHold(ctx, req.EventID, seatIDs, req.SessionID, ttl)
		if err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		err = s.translateTryHoldErr(ctx, req.EventID, err)
		metrics.HoldRequests.WithLabelValues(outcome(err)).Inc()
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	metrics.HoldRequests.WithLabelValues("held").Inc()
	s.notify(ctx, hold.EventID, hold.SeatIDs, domain.SeatHeld)

	return hold, nil
}

func (s *Service) translateTryHoldErr(ctx context.Context, eventID int64, err error) error {
	var (
		seatConflict *repository.SeatConflictError
		notFound     *repository.SeatsNotFoundError
	)

	switch {
	case errors.As(err, &seatConflict):
		seats, lookupErr := s.store.Catalog().GetSeats(ctx, eventID, seatConflict.SeatIDs)
		if lookupErr != nil {
			s.log.Warn("failed to describe conflicting seats", slog.Any("err", lookupErr))
		}
		return &SeatsUnavailableError{Seats: seats}
	case errors.Is(err, repository.ErrConflict):
		return &SeatsUnavailableError{}
	case errors.As(err, &notFound):
		if _, listErr := s.store.Catalog().ListSeats(ctx, eventID); errors.Is(listErr, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return &UnknownSeatsError{SeatIDs: notFound.SeatIDs}
	}

	return translateStoreErr(err)
}

// Renew extends a live hold owned by sessionID.
//
// Returns:
//   - domain.Hold: the hold with its new expiry.
//   - error: holds.ErrHoldNotFound if the token is unknown or owned by another session.
//   - error: holds.ErrHoldExpired if the hold lapsed; the caller must request a new one.
//   - error: holds.ErrRenewalLimit if the renewal count or lifetime ceiling is reached.
func (s *Service) Renew(ctx context.Context, token uuid.UUID, sessionID string, ttl time.Duration) (domain.Hold, error) {
	const op = "service.holds.Renew"

	ttl = s.clampTTL(ttl)

	var renewed domain.Hold
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			hold, err := tx.Reservations().GetHold(ctx, token)
			if err != nil {
				return err
			}
			if hold.SessionID != sessionID {
				return ErrHoldNotFound
			}

			now := s.clock.Now()
			if !hold.IsLive(now) {
				return ErrHoldExpired
			}
			if hold.Renewals >= s.cfg.MaxRenewals {
				return ErrRenewalLimit
			}

			ceiling := hold.ReservedAt.Add(s.cfg.MaxHoldLifetime)
			if !ceiling.After(hold.ExpiresAt) {
				return ErrRenewalLimit
			}

			next := ttl
			if now.Add(next).After(ceiling) {
				next = ceiling.Sub(now)
			}
			if !now.Add(next).After(hold.ExpiresAt) {
				// Renewing never shortens a hold.
				renewed = hold
				return nil
			}

			renewed, err = tx.Reservations().RenewHold(ctx, token, next)
			return err
		})
	})
	if err != nil {
		err = translateStoreErr(err)
		metrics.HoldRenewals.WithLabelValues(outcome(err)).Inc()
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	metrics.HoldRenewals.WithLabelValues("renewed").Inc()

	return renewed, nil
}

// Release gives the seats of a hold back. Unknown or already ended holds
// are not an error.
func (s *Service) Release(ctx context.Context, token uuid.UUID, sessionID string) error {
	const op = "service.holds.Release"

	var hold domain.Hold
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			h, err := tx.Reservations().GetHold(ctx, token)
			if err != nil {
				return err
			}
			if h.SessionID != sessionID {
				return ErrHoldNotFound
			}
			hold = h
			return tx.Reservations().ReleaseHold(ctx, token)
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	if hold.IsLive(s.clock.Now()) {
		s.notify(ctx, hold.EventID, hold.SeatIDs, domain.SeatAvailable)
	}

	return nil
}

// Get returns the hold behind token as the store sees it.
func (s *Service) Get(ctx context.Context, token uuid.UUID) (domain.Hold, error) {
	const op = "service.holds.Get"

	hold, err := s.store.Reservations().GetHold(ctx, token)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, translateStoreErr(err))
	}

	return hold, nil
}

type SweepResult struct {
	Holds int
	Seats int64
}

// Sweep marks lapsed holds as expired in bounded batches. Expiry is already
// in force at expiresAt; the sweep only tidies rows and notifies watchers.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	const op = "service.holds.Sweep"

	var res SweepResult
	for i := 0; i < s.cfg.SweepMaxBatches; i++ {
		swept, err := s.store.Reservations().SweepExpired(ctx, s.cfg.SweepBatchSize)
		if err != nil {
			return res, fmt.Errorf("%s:%w", op, translateStoreErr(err))
		}

		var rows int64
		for _, h := range swept {
			rows += h.Seats
			s.notify(ctx, h.EventID, nil, domain.SeatAvailable)
		}

		res.Holds += len(swept)
		res.Seats += rows
		metrics.SeatsSwept.Add(float64(rows))

		if rows < int64(s.cfg.SweepBatchSize) {
			break
		}
	}

	return res, nil
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return s.cfg.DefaultTTL
	case ttl < s.cfg.MinTTL:
		return s.cfg.MinTTL
	case ttl > s.cfg.MaxTTL:
		return s.cfg.MaxTTL
	}
	return ttl
}

func (s *Service) notify(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishSeatsChanged(ctx, eventID, seatIDs, status); err != nil {
		s.log.Warn("failed to publish seat change",
			slog.Int64("event_id", eventID),
			slog.Any("err", err),
		)
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrHoldNotFound
	case errors.Is(err, repository.ErrHoldExpired):
		return ErrHoldExpired
	case repository.IsRetryable(err):
		return ErrStoreUnavailable
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrSeatsConflict):
		return "conflict"
	case errors.Is(err, ErrHoldExpired):
		return "expired"
	case errors.Is(err, ErrRenewalLimit):
		return "limit"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}
