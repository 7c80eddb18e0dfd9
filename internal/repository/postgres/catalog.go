package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// ListSeats returns every seat of the event ordered by row and number.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - eventID: unique identifier of the event.
//
// Returns:
//   - []domain.Seat: the published layout.
//   - error: repository.ErrNotFound if the event has no published layout.
func (r *CatalogRepo) ListSeats(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	const op = "postgres.CatalogRepo.ListSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT id, event_id, row_label, number, ticket_type, price_cents
		 FROM seats
		 WHERE event_id = $1
		 ORDER BY row_label, number`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	seats, err := scanSeats(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if len(seats) == 0 {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return seats, nil
}

func (r *CatalogRepo) GetSeats(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error) {
	const op = "postgres.CatalogRepo.GetSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT id, event_id, row_label, number, ticket_type, price_cents
		 FROM seats
		 WHERE event_id = $1 AND id = ANY($2)
		 ORDER BY row_label, number`,
		eventID, seatIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	seats, err := scanSeats(rows)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return seats, nil
}

// PublishLayout stores an event and its seats. A layout is published once;
// a second call for the same event fails with repository.ErrConflict.
func (r *CatalogRepo) PublishLayout(ctx context.Context, event domain.Event, seats []domain.Seat) (int64, error) {
	const op = "postgres.CatalogRepo.PublishLayout"

	err := inTx(ctx, r.pool, r.db, serializable, func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx,
			`INSERT INTO events(id, title) VALUES ($1, $2)`,
			event.ID, event.Title,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, s := range seats {
			batch.Queue(
				`INSERT INTO seats(event_id, row_label, number, ticket_type, price_cents)
				 VALUES ($1, $2, $3, $4, $5)`,
				event.ID, s.Row, s.Number, s.TicketType, s.PriceCents,
			)
		}
		return db.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return int64(len(seats)), nil
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Row, &s.Number, &s.TicketType, &s.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
