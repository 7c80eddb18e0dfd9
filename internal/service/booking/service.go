package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/metrics"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/kirinyoku/tix-reserve/internal/retry"
	"github.com/kirinyoku/tix-reserve/internal/uow"
	"github.com/samber/lo"
)

type Config struct {
	// CheckoutTimeout abandons pending bookings; it may not exceed HoldTTL.
	CheckoutTimeout time.Duration
	HoldTTL         time.Duration
	Retry           retry.Config
}

// Notifier is told about seat status changes after they are committed.
type Notifier interface {
	PublishSeatsChanged(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error
}

// Service drives a booking from checkout to its terminal state and turns
// the hold behind it into confirmed seats.
type Service struct {
	store     repository.Store
	uow       *uow.UoW
	clock     clock.Clock
	publisher EventPublisher
	notifier  Notifier
	retrier   *retry.Retrier
	log       *slog.Logger
	cfg       Config
}

// New creates the booking finalizer. publisher and notifier may be nil.
func New(
	store repository.Store,
	clk clock.Clock,
	publisher EventPublisher,
	notifier Notifier,
	logger *slog.Logger,
	cfg Config,
) (*Service, error) {
	const op = "service.booking.New"

	if cfg.HoldTTL <= 0 {
		return nil, fmt.Errorf("%s:%w: hold ttl must be positive", op, ErrInvalidConfig)
	}
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = cfg.HoldTTL
	}
	if cfg.CheckoutTimeout > cfg.HoldTTL {
		return nil, fmt.Errorf("%s:%w: checkout timeout %s exceeds hold ttl %s", op, ErrInvalidConfig, cfg.CheckoutTimeout, cfg.HoldTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:     store,
		uow:       uow.NewUoW(store),
		clock:     clk,
		publisher: publisher,
		notifier:  notifier,
		log:       logger,
		cfg:       cfg,
	}
	s.retrier = retry.New(cfg.Retry, retryableBookingErr, func(attempt int, err error, next time.Duration) {
		metrics.StoreRetries.WithLabelValues("booking").Inc()
		s.log.Debug("retrying booking operation", slog.Int("attempt", attempt), slog.Any("err", err))
	})

	return s, nil
}

// retryableBookingErr also retries conflicts: a lost compare-and-set or a
// concurrent checkout of the same hold is resolved by re-reading the booking.
func retryableBookingErr(err error) bool {
	return repository.IsRetryable(err) || errors.Is(err, repository.ErrConflict)
}

type CheckoutRequest struct {
	HoldToken uuid.UUID
	SessionID string
	Email     string
	Name      string
}

// StartCheckout creates a pending booking for a live hold. Calling it again
// for the same hold returns the existing booking.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: hold token, owning session and customer details.
//
// Returns:
//   - *domain.Booking: the pending (or previously created) booking.
//   - error: booking.ErrHoldNotFound if the hold is unknown or owned by another session.
//   - error: booking.ErrHoldExpired if the hold is no longer live.
//   - error: booking.ErrInvalidCustomer if the email is malformed.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*domain.Booking, error) {
	const op = "service.booking.StartCheckout"

	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCustomer)
	}

	var out *domain.Booking
	err := s.withRetry(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		existing, err := tx.Bookings().GetByHoldToken(ctx, req.HoldToken)
		switch {
		case err == nil:
			if existing.SessionID != req.SessionID {
				return ErrHoldNotFound
			}
			out = existing
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		hold, err := tx.Reservations().GetHold(ctx, req.HoldToken)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrHoldNotFound
		}
		if err != nil {
			return err
		}
		if hold.SessionID != req.SessionID {
			return ErrHoldNotFound
		}
		if !hold.IsLive(s.clock.Now()) {
			return ErrHoldExpired
		}

		seats, err := tx.Catalog().GetSeats(ctx, hold.EventID, hold.SeatIDs)
		if err != nil {
			return err
		}

		items := lo.Map(seats, func(seat domain.Seat, _ int) domain.BookingItem {
			return domain.BookingItem{
				SeatID:     seat.ID,
				Row:        seat.Row,
				Number:     seat.Number,
				TicketType: seat.TicketType,
				PriceCents: seat.PriceCents,
			}
		})

		b := &domain.Booking{
			ID:            uuid.New(),
			EventID:       hold.EventID,
			HoldToken:     hold.Token,
			SessionID:     hold.SessionID,
			CustomerEmail: email,
			CustomerName:  strings.TrimSpace(req.Name),
			Items:         items,
			TotalCents:    lo.SumBy(items, func(it domain.BookingItem) int { return it.PriceCents }),
			Status:        domain.BookingPending,
			PaymentStatus: domain.PaymentPending,
			CreatedAt:     s.clock.Now(),
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}

		out = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	return out, nil
}

type PaymentOutcome struct {
	BookingID  uuid.UUID `json:"booking_id"`
	Succeeded  bool      `json:"succeeded"`
	PaymentRef string    `json:"payment_ref"`
	Reason     string    `json:"reason,omitempty"`
}

// HandlePayment applies a payment outcome. It is safe to call repeatedly
// with the same outcome.
//
// A successful payment confirms the hold in the same transaction that
// completes the booking. If the hold can no longer be confirmed the booking
// moves to requires_review, a SeatUnavailableAfterPayment event is
// published and *SeatUnavailableAfterPaymentError is returned; repeated
// deliveries return the same error.
//
// A failed payment releases the hold of a pending booking and cancels it.
// Failures reported for bookings that already ended are ignored.
func (s *Service) HandlePayment(ctx context.Context, p PaymentOutcome) (*domain.Booking, error) {
	const op = "service.booking.HandlePayment"

	var (
		out      *domain.Booking
		seatLost bool
	)
	err := s.withRetry(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		seatLost = false

		b, err := tx.Bookings().Get(ctx, p.BookingID)
		if err != nil {
			return err
		}
		out = b

		if !p.Succeeded {
			return s.applyFailure(ctx, tx, after, b, p)
		}

		switch b.Status {
		case domain.BookingCompleted:
			return nil
		case domain.BookingRequiresReview:
			seatLost = true
			return nil
		case domain.BookingCancelled:
			// Paid then refunded: a redelivered success changes nothing.
			if b.PaymentStatus == domain.PaymentSucceeded {
				return nil
			}
		case domain.BookingPending:
			err := tx.Reservations().ConfirmHold(ctx, b.HoldToken, b.ID)
			if err == nil {
				return s.transition(ctx, tx, after, b, domain.BookingCompleted, domain.PaymentSucceeded, p.PaymentRef, EventBookingCompleted, "")
			}
			if !errors.Is(err, repository.ErrHoldExpired) && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if err := tx.Reservations().ReleaseHold(ctx, b.HoldToken); err != nil {
				return err
			}
		}

		// Pending with a lapsed hold, or already cancelled/expired: the
		// money arrived but the seats are gone.
		seatLost = true
		return s.transition(ctx, tx, after, b, domain.BookingRequiresReview, domain.PaymentSucceeded, p.PaymentRef,
			EventSeatUnavailableAfterPayment, "hold no longer confirmable at payment time")
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	if seatLost {
		metrics.SeatUnavailableAfterPayment.Inc()
		s.log.Error("payment succeeded but seats are unavailable",
			slog.String("booking_id", out.ID.String()),
			slog.String("payment_ref", p.PaymentRef),
		)
		return out, fmt.Errorf("%s:%w", op, &SeatUnavailableAfterPaymentError{BookingID: out.ID, PaymentRef: p.PaymentRef})
	}

	return out, nil
}

func (s *Service) applyFailure(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit), b *domain.Booking, p PaymentOutcome) error {
	if b.Status != domain.BookingPending {
		return nil
	}

	if err := tx.Reservations().ReleaseHold(ctx, b.HoldToken); err != nil {
		return err
	}

	if err := s.transition(ctx, tx, after, b, domain.BookingCancelled, domain.PaymentFailed, p.PaymentRef, EventBookingCancelled, p.Reason); err != nil {
		return err
	}

	after(func(ctx context.Context) {
		s.notify(ctx, b, domain.SeatAvailable)
	})
	return nil
}

// ExpireAbandoned releases the holds of bookings that stayed pending longer
// than the checkout timeout and marks them expired.
func (s *Service) ExpireAbandoned(ctx context.Context, limit int) (int, error) {
	const op = "service.booking.ExpireAbandoned"

	cutoff := s.clock.Now().Add(-s.cfg.CheckoutTimeout)
	stale, err := s.store.Bookings().ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	expired := 0
	for _, candidate := range stale {
		err := s.withRetry(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
			b, err := tx.Bookings().Get(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if b.Status != domain.BookingPending {
				return nil
			}

			if err := tx.Reservations().ReleaseHold(ctx, b.HoldToken); err != nil {
				return err
			}
			if err := s.transition(ctx, tx, after, b, domain.BookingExpired, "", "", EventBookingExpired, "checkout timed out"); err != nil {
				return err
			}

			expired++
			after(func(ctx context.Context) {
				s.notify(ctx, b, domain.SeatAvailable)
			})
			return nil
		})
		if err != nil {
			return expired, fmt.Errorf("%s:%w", op, translateErr(err))
		}
	}

	return expired, nil
}

// Refund cancels a completed booking and frees its seats.
//
// Returns:
//   - *domain.Booking: the cancelled booking.
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrNotRefundable unless the booking is completed.
func (s *Service) Refund(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Refund"

	var out *domain.Booking
	err := s.withRetry(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingCompleted {
			return ErrNotRefundable
		}

		if _, err := tx.Reservations().ReleaseBooked(ctx, b.ID); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, after, b, domain.BookingCancelled, "", "", EventBookingRefunded, "refunded"); err != nil {
			return err
		}

		out = b
		after(func(ctx context.Context) {
			s.notify(ctx, b, domain.SeatAvailable)
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateErr(err))
	}

	return b, nil
}

// transition moves b from its current status to `to` and schedules the
// matching event for after commit. b is updated in place.
func (s *Service) transition(
	ctx context.Context,
	tx repository.Tx,
	after func(uow.AfterCommit),
	b *domain.Booking,
	to domain.BookingStatus,
	payment domain.PaymentStatus,
	paymentRef string,
	evType EventType,
	reason string,
) error {
	if err := tx.Bookings().UpdateStatus(ctx, b.ID, b.Status, to, payment, paymentRef); err != nil {
		return err
	}

	now := s.clock.Now()
	b.Status = to
	if payment != "" {
		b.PaymentStatus = payment
	}
	if paymentRef != "" {
		b.PaymentRef = paymentRef
	}
	b.UpdatedAt = now

	ev := Event{
		Type:       evType,
		BookingID:  b.ID,
		EventID:    b.EventID,
		HoldToken:  b.HoldToken,
		Status:     to,
		SeatIDs:    lo.Map(b.Items, func(it domain.BookingItem, _ int) int64 { return it.SeatID }),
		TotalCents: b.TotalCents,
		PaymentRef: b.PaymentRef,
		Reason:     reason,
		OccurredAt: now,
	}

	after(func(ctx context.Context) {
		metrics.BookingTransitions.WithLabelValues(string(to)).Inc()
		if to == domain.BookingCompleted {
			s.notify(ctx, b, domain.SeatBooked)
		}
		s.publish(ctx, ev)
	})

	return nil
}

func (s *Service) withRetry(ctx context.Context, work uow.Work) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.uow.Do(ctx, work)
	})
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Error("failed to publish booking event",
			slog.String("type", string(ev.Type)),
			slog.String("booking_id", ev.BookingID.String()),
			slog.Any("err", err),
		)
	}
}

func (s *Service) notify(ctx context.Context, b *domain.Booking, status domain.SeatStatus) {
	if s.notifier == nil {
		return
	}
	seatIDs := lo.Map(b.Items, func(it domain.BookingItem, _ int) int64 { return it.SeatID })
	if err := s.notifier.PublishSeatsChanged(ctx, b.EventID, seatIDs, status); err != nil {
		s.log.Warn("failed to publish seat change", slog.Int64("event_id", b.EventID), slog.Any("err", err))
	}
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, ErrHoldNotFound), errors.Is(err, ErrHoldExpired), errors.Is(err, ErrNotRefundable):
		return err
	case errors.Is(err, repository.ErrHoldExpired):
		return ErrHoldExpired
	case errors.Is(err, repository.ErrNotFound):
		return ErrBookingNotFound
	case repository.IsRetryable(err), errors.Is(err, repository.ErrConflict):
		return ErrStoreUnavailable
	}
	return err
}
