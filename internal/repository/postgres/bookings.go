package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

const bookingCols = `id, event_id, hold_token, session_id, customer_email, customer_name,
	items, total_cents, status, payment_status, payment_ref, created_at, updated_at`

type BookingRepo struct {
	pool  *pgxpool.Pool
	db    DB
	clock clock.Clock
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a booking. CreatedAt defaults to the store clock.
//
// Returns:
//   - error: repository.ErrConflict if the id or the hold token is already booked.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	now := r.clock.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	items := b.Items
	if items == nil {
		items = []domain.BookingItem{}
	}

	_, err := r.handle().Exec(ctx,
		`INSERT INTO bookings(`+bookingCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, b.EventID, b.HoldToken, b.SessionID, b.CustomerEmail, b.CustomerName,
		items, b.TotalCents, b.Status, b.PaymentStatus, b.PaymentRef, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return b, nil
}

func (r *BookingRepo) GetByHoldToken(ctx context.Context, token uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetByHoldToken"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE hold_token = $1`,
		token,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return b, nil
}

// UpdateStatus is a compare-and-set on the booking status. Empty payment or
// paymentRef keep the stored values.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrConflict if the booking is no longer in status from.
func (r *BookingRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.BookingStatus,
	payment domain.PaymentStatus,
	paymentRef string,
) error {
	const op = "postgres.BookingRepo.UpdateStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET status = $3,
		     payment_status = COALESCE(NULLIF($4, ''), payment_status),
		     payment_ref = COALESCE(NULLIF($5, ''), payment_ref),
		     updated_at = $6
		 WHERE id = $1 AND status = $2`,
		id, from, to, string(payment), paymentRef, r.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if !exists {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *BookingRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListStalePending"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingCols+` FROM bookings
		 WHERE status = 'pending' AND created_at <= $1
		 ORDER BY created_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(
		&b.ID, &b.EventID, &b.HoldToken, &b.SessionID, &b.CustomerEmail, &b.CustomerName,
		&b.Items, &b.TotalCents, &b.Status, &b.PaymentStatus, &b.PaymentRef, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}
