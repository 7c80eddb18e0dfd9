package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

type BookingRepo struct {
	s     *Store
	bound bool
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Create"

	err := r.s.do(ctx, r.bound, func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return repository.ErrConflict
		}
		for _, existing := range st.bookings {
			if existing.HoldToken == b.HoldToken {
				return repository.ErrConflict
			}
		}

		now := r.s.clock.Now()
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now

		cp := *b
		cp.Items = slices.Clone(b.Items)
		st.bookings[b.ID] = cp
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.BookingRepo.Get"

	var out *domain.Booking
	err := r.s.do(ctx, r.bound, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		b.Items = slices.Clone(b.Items)
		out = &b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *BookingRepo) GetByHoldToken(ctx context.Context, token uuid.UUID) (*domain.Booking, error) {
	const op = "memory.BookingRepo.GetByHoldToken"

	var out *domain.Booking
	err := r.s.do(ctx, r.bound, func(st *state) error {
		for _, b := range st.bookings {
			if b.HoldToken == token {
				b.Items = slices.Clone(b.Items)
				out = &b
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// UpdateStatus moves a booking from one status to another and fails with
// ErrConflict when the booking is no longer in from. Empty payment or
// paymentRef leave the stored values untouched.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, payment domain.PaymentStatus, paymentRef string) error {
	const op = "memory.BookingRepo.UpdateStatus"

	err := r.s.do(ctx, r.bound, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		if b.Status != from {
			return repository.ErrConflict
		}

		b.Status = to
		if payment != "" {
			b.PaymentStatus = payment
		}
		if paymentRef != "" {
			b.PaymentRef = paymentRef
		}
		b.UpdatedAt = r.s.clock.Now()
		st.bookings[id] = b
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *BookingRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.do(ctx, r.bound, func(st *state) error {
		for _, b := range st.bookings {
			if b.Status == domain.BookingPending && !b.CreatedAt.After(before) {
				b.Items = slices.Clone(b.Items)
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
