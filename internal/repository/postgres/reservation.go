package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/samber/lo"
)

const reservationCols = `id, event_id, seat_id, session_id, hold_token, booking_id,
	reserved_at, expires_at, state, renewals`

var readCommitted = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

type ReservationRepo struct {
	pool  *pgxpool.Pool
	db    DB
	clock clock.Clock
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// TryHold reserves every seat in seatIDs under one new hold token, or none
// of them.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - eventID: unique identifier of the event the seats belong to.
//   - seatIDs: seats to hold; must be non-empty.
//   - sessionID: the buyer session that will own the hold.
//   - ttl: how long the hold stays active.
//
// Returns:
//   - domain.Hold: the new hold when successful.
//   - error: *repository.SeatsNotFoundError if some seats are not part of the event.
//   - error: *repository.SeatConflictError listing seats that already carry an active reservation.
//   - error: repository.ErrStoreUnavailable on serialization failures; safe to retry.
func (r *ReservationRepo) TryHold(
	ctx context.Context,
	eventID int64,
	seatIDs []int64,
	sessionID string,
	ttl time.Duration,
) (domain.Hold, error) {
	const op = "postgres.ReservationRepo.TryHold"

	seatIDs = lo.Uniq(seatIDs)
	if len(seatIDs) == 0 {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, errors.New("empty seat set"))
	}

	var hold domain.Hold
	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		var err error
		hold, err = r.tryHoldCore(ctx, db, eventID, seatIDs, sessionID, ttl)
		return err
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

func (r *ReservationRepo) tryHoldCore(
	ctx context.Context,
	db DB,
	eventID int64,
	seatIDs []int64,
	sessionID string,
	ttl time.Duration,
) (domain.Hold, error) {
	now := r.clock.Now()

	// Locking seat rows in id order serializes overlapping requests without
	// deadlocking them against each other.
	rows, err := db.Query(ctx,
		`SELECT id FROM seats
		 WHERE event_id = $1 AND id = ANY($2)
		 ORDER BY id
		 FOR UPDATE`,
		eventID, seatIDs,
	)
	if err != nil {
		return domain.Hold{}, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return domain.Hold{}, err
	}

	if missing := lo.Without(seatIDs, found...); len(missing) > 0 {
		return domain.Hold{}, &repository.SeatsNotFoundError{SeatIDs: missing}
	}

	rows, err = db.Query(ctx,
		`SELECT seat_id FROM seat_reservations
		 WHERE seat_id = ANY($1)
		   AND (state = 'confirmed' OR (state = 'held' AND expires_at > $2))
		 ORDER BY seat_id`,
		seatIDs, now,
	)
	if err != nil {
		return domain.Hold{}, err
	}
	taken, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return domain.Hold{}, err
	}

	if len(taken) > 0 {
		return domain.Hold{}, &repository.SeatConflictError{SeatIDs: taken}
	}

	if _, err := db.Exec(ctx,
		`UPDATE seat_reservations
		 SET state = 'expired'
		 WHERE seat_id = ANY($1) AND state = 'held' AND expires_at <= $2`,
		seatIDs, now,
	); err != nil {
		return domain.Hold{}, err
	}

	token := uuid.New()
	expires := now.Add(ttl)

	batch := &pgx.Batch{}
	for _, sid := range seatIDs {
		batch.Queue(
			`INSERT INTO seat_reservations(event_id, seat_id, session_id, hold_token, reserved_at, expires_at, state)
			 VALUES ($1, $2, $3, $4, $5, $6, 'held')`,
			eventID, sid, sessionID, token, now, expires,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Hold{}, err
	}

	return domain.Hold{
		Token:      token,
		EventID:    eventID,
		SessionID:  sessionID,
		SeatIDs:    append([]int64(nil), seatIDs...),
		ReservedAt: now,
		ExpiresAt:  expires,
		State:      domain.ReservationHeld,
	}, nil
}

// RenewHold moves the expiry of a live hold to now+ttl.
//
// Returns:
//   - error: repository.ErrNotFound if the token is unknown.
//   - error: repository.ErrHoldExpired if the hold is no longer live.
func (r *ReservationRepo) RenewHold(ctx context.Context, token uuid.UUID, ttl time.Duration) (domain.Hold, error) {
	const op = "postgres.ReservationRepo.RenewHold"

	var hold domain.Hold
	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		now := r.clock.Now()

		rows, err := r.lockToken(ctx, db, token)
		if err != nil {
			return err
		}
		if !domain.HoldFromRows(rows).IsLive(now) {
			return repository.ErrHoldExpired
		}

		expires := now.Add(ttl)
		if _, err := db.Exec(ctx,
			`UPDATE seat_reservations
			 SET expires_at = $2, renewals = renewals + 1
			 WHERE hold_token = $1 AND state = 'held'`,
			token, expires,
		); err != nil {
			return err
		}

		for i := range rows {
			rows[i].ExpiresAt = expires
			rows[i].Renewals++
		}
		hold = domain.HoldFromRows(rows)
		return nil
	})
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, err)
	}

	return hold, nil
}

// ReleaseHold ends a hold early. Releasing an unknown, expired or already
// released hold is a no-op; confirmed rows are never touched.
func (r *ReservationRepo) ReleaseHold(ctx context.Context, token uuid.UUID) error {
	const op = "postgres.ReservationRepo.ReleaseHold"

	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx,
			`UPDATE seat_reservations
			 SET state = 'released'
			 WHERE hold_token = $1 AND state = 'held'`,
			token,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ConfirmHold turns a live hold into a permanent reservation owned by
// bookingID. Confirming again with the same booking id succeeds.
//
// Returns:
//   - error: repository.ErrNotFound if the token is unknown.
//   - error: repository.ErrHoldExpired if the hold lapsed, was released or
//     belongs to another booking.
func (r *ReservationRepo) ConfirmHold(ctx context.Context, token uuid.UUID, bookingID uuid.UUID) error {
	const op = "postgres.ReservationRepo.ConfirmHold"

	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		now := r.clock.Now()

		rows, err := r.lockToken(ctx, db, token)
		if err != nil {
			return err
		}

		hold := domain.HoldFromRows(rows)
		if hold.State == domain.ReservationConfirmed && hold.BookingID != nil && *hold.BookingID == bookingID {
			return nil
		}
		if !hold.IsLive(now) {
			return repository.ErrHoldExpired
		}

		_, err = db.Exec(ctx,
			`UPDATE seat_reservations
			 SET state = 'confirmed', booking_id = $2
			 WHERE hold_token = $1 AND state = 'held'`,
			token, bookingID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ReleaseBooked frees the seats of a confirmed booking, e.g. after a refund.
func (r *ReservationRepo) ReleaseBooked(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	const op = "postgres.ReservationRepo.ReleaseBooked"

	var released int64
	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		tag, err := db.Exec(ctx,
			`UPDATE seat_reservations
			 SET state = 'released'
			 WHERE booking_id = $1 AND state = 'confirmed'`,
			bookingID,
		)
		if err != nil {
			return err
		}
		released = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return released, nil
}

func (r *ReservationRepo) GetHold(ctx context.Context, token uuid.UUID) (domain.Hold, error) {
	const op = "postgres.ReservationRepo.GetHold"

	rows, err := r.handle().Query(ctx,
		`SELECT `+reservationCols+` FROM seat_reservations WHERE hold_token = $1 ORDER BY seat_id`,
		token,
	)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	res, err := scanReservations(rows)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if len(res) == 0 {
		return domain.Hold{}, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return domain.HoldFromRows(res), nil
}

// ListActive returns the rows that currently claim a seat of the event.
func (r *ReservationRepo) ListActive(ctx context.Context, eventID int64) ([]domain.SeatReservation, error) {
	const op = "postgres.ReservationRepo.ListActive"

	rows, err := r.handle().Query(ctx,
		`SELECT `+reservationCols+` FROM seat_reservations
		 WHERE event_id = $1
		   AND (state = 'confirmed' OR (state = 'held' AND expires_at > $2))`,
		eventID, r.clock.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	res, err := scanReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, nil
}

// SweepExpired marks up to batchSize lapsed held rows as expired, oldest
// first. Rows locked by an in-flight hold or confirmation are skipped and
// picked up by a later pass.
func (r *ReservationRepo) SweepExpired(ctx context.Context, batchSize int) ([]domain.SweptHold, error) {
	const op = "postgres.ReservationRepo.SweepExpired"

	var swept []domain.SweptHold
	err := inTx(ctx, r.pool, r.db, readCommitted, func(ctx context.Context, db DB) error {
		rows, err := db.Query(ctx,
			`UPDATE seat_reservations
			 SET state = 'expired'
			 WHERE id IN (
				SELECT id FROM seat_reservations
				WHERE state = 'held' AND expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			 )
			 RETURNING event_id, hold_token`,
			r.clock.Now(), batchSize,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		byToken := make(map[uuid.UUID]int)
		for rows.Next() {
			var (
				eventID int64
				token   uuid.UUID
			)
			if err := rows.Scan(&eventID, &token); err != nil {
				return err
			}

			pos, ok := byToken[token]
			if !ok {
				pos = len(swept)
				byToken[token] = pos
				swept = append(swept, domain.SweptHold{EventID: eventID, HoldToken: token})
			}
			swept[pos].Seats++
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return swept, nil
}

func (r *ReservationRepo) lockToken(ctx context.Context, db DB, token uuid.UUID) ([]domain.SeatReservation, error) {
	rows, err := db.Query(ctx,
		`SELECT `+reservationCols+` FROM seat_reservations
		 WHERE hold_token = $1
		 ORDER BY seat_id
		 FOR UPDATE`,
		token,
	)
	if err != nil {
		return nil, err
	}

	res, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, repository.ErrNotFound
	}

	return res, nil
}

func scanReservations(rows pgx.Rows) ([]domain.SeatReservation, error) {
	defer rows.Close()

	var out []domain.SeatReservation
	for rows.Next() {
		var sr domain.SeatReservation
		if err := rows.Scan(
			&sr.ID, &sr.EventID, &sr.SeatID, &sr.SessionID, &sr.HoldToken, &sr.BookingID,
			&sr.ReservedAt, &sr.ExpiresAt, &sr.State, &sr.Renewals,
		); err != nil {
			return nil, err
		}
		sr.ReservedAt = sr.ReservedAt.UTC()
		sr.ExpiresAt = sr.ExpiresAt.UTC()
		out = append(out, sr)
	}

	return out, rows.Err()
}
