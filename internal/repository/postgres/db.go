package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var serializable = pgx.TxOptions{
	IsoLevel:   pgx.Serializable,
	AccessMode: pgx.ReadWrite,
}

type Store struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewStore(pool *pgxpool.Pool, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{
		pool:  pool,
		clock: clk,
	}
}

// RunTx runs fn in a serializable transaction. Repositories reached through
// tx share it; the transaction commits only if fn returns nil.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	const op = "postgres.Store.RunTx"

	err := runTx(ctx, s.pool, serializable, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txView{s: s, db: tx})
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Store) Catalog() repository.CatalogRepo {
	return &CatalogRepo{pool: s.pool}
}

func (s *Store) Reservations() repository.ReservationRepo {
	return &ReservationRepo{pool: s.pool, clock: s.clock}
}

func (s *Store) Bookings() repository.BookingRepo {
	return &BookingRepo{pool: s.pool, clock: s.clock}
}

type txView struct {
	s  *Store
	db DB
}

func (t *txView) Catalog() repository.CatalogRepo {
	return (&CatalogRepo{pool: t.s.pool}).With(t.db)
}

func (t *txView) Reservations() repository.ReservationRepo {
	return (&ReservationRepo{pool: t.s.pool, clock: t.s.clock}).With(t.db)
}

func (t *txView) Bookings() repository.BookingRepo {
	return (&BookingRepo{pool: t.s.pool, clock: t.s.clock}).With(t.db)
}

func runTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return translateDBErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

// inTx runs core on db when the repository is bound to a transaction and
// otherwise in a fresh one opened with opts.
func inTx(ctx context.Context, pool *pgxpool.Pool, db DB, opts pgx.TxOptions, core func(ctx context.Context, db DB) error) error {
	if db != nil {
		return translateDBErr(core(ctx, db))
	}
	return runTx(ctx, pool, opts, func(ctx context.Context, tx pgx.Tx) error {
		return core(ctx, tx)
	})
}
