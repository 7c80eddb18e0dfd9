package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is safe to apply on every start.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id    BIGINT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS seats (
	id          BIGSERIAL PRIMARY KEY,
	event_id    BIGINT  NOT NULL REFERENCES events(id),
	row_label   TEXT    NOT NULL,
	number      INT     NOT NULL,
	ticket_type TEXT    NOT NULL DEFAULT 'standard',
	price_cents INT     NOT NULL DEFAULT 0,
	UNIQUE (event_id, row_label, number)
);

CREATE TABLE IF NOT EXISTS seat_reservations (
	id          BIGSERIAL   PRIMARY KEY,
	event_id    BIGINT      NOT NULL REFERENCES events(id),
	seat_id     BIGINT      NOT NULL REFERENCES seats(id),
	session_id  TEXT        NOT NULL,
	hold_token  UUID        NOT NULL,
	booking_id  UUID,
	reserved_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	state       TEXT        NOT NULL CHECK (state IN ('held', 'confirmed', 'released', 'expired')),
	renewals    INT         NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS seat_reservations_one_active
	ON seat_reservations (seat_id) WHERE state IN ('held', 'confirmed');
CREATE INDEX IF NOT EXISTS seat_reservations_token ON seat_reservations (hold_token);
CREATE INDEX IF NOT EXISTS seat_reservations_booking ON seat_reservations (booking_id) WHERE booking_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS seat_reservations_sweep ON seat_reservations (expires_at) WHERE state = 'held';
CREATE INDEX IF NOT EXISTS seat_reservations_event_live ON seat_reservations (event_id) WHERE state IN ('held', 'confirmed');

CREATE TABLE IF NOT EXISTS bookings (
	id             UUID        PRIMARY KEY,
	event_id       BIGINT      NOT NULL REFERENCES events(id),
	hold_token     UUID        NOT NULL UNIQUE,
	session_id     TEXT        NOT NULL,
	customer_email TEXT        NOT NULL,
	customer_name  TEXT        NOT NULL DEFAULT '',
	items          JSONB       NOT NULL DEFAULT '[]',
	total_cents    INT         NOT NULL,
	status         TEXT        NOT NULL,
	payment_status TEXT        NOT NULL,
	payment_ref    TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bookings_pending ON bookings (created_at) WHERE status = 'pending';
`

// Migrate creates the tables and indexes the store relies on.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "postgres.Migrate"

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
