package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
)

type state struct {
	events       map[int64]domain.Event
	seats        map[int64][]domain.Seat
	seatByID     map[int64]domain.Seat
	reservations []domain.SeatReservation
	bookings     map[uuid.UUID]domain.Booking
	nextSeatID   int64
	nextResID    int64
}

func newState() *state {
	return &state{
		events:   make(map[int64]domain.Event),
		seats:    make(map[int64][]domain.Seat),
		seatByID: make(map[int64]domain.Seat),
		bookings: make(map[uuid.UUID]domain.Booking),
	}
}

// clone copies everything a transaction may mutate. Seats are immutable once
// published, so the per-event slices are shared.
func (s *state) clone() *state {
	cp := &state{
		events:       make(map[int64]domain.Event, len(s.events)),
		seats:        make(map[int64][]domain.Seat, len(s.seats)),
		seatByID:     make(map[int64]domain.Seat, len(s.seatByID)),
		reservations: slices.Clone(s.reservations),
		bookings:     make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		nextSeatID:   s.nextSeatID,
		nextResID:    s.nextResID,
	}
	for k, v := range s.events {
		cp.events[k] = v
	}
	for k, v := range s.seats {
		cp.seats[k] = v
	}
	for k, v := range s.seatByID {
		cp.seatByID[k] = v
	}
	for k, v := range s.bookings {
		v.Items = slices.Clone(v.Items)
		cp.bookings[k] = v
	}
	return cp
}

// Store keeps every table in process memory behind one mutex. A transaction
// holds the mutex for its whole duration and is rolled back by restoring a
// snapshot, which gives the same all-or-nothing contract as the PostgreSQL
// store without a database.
type Store struct {
	mu    sync.Mutex
	st    *state
	clock clock.Clock
}

func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{st: newState(), clock: clk}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &txView{s: s}); err != nil {
		s.st = snapshot
		return err
	}

	return nil
}

func (s *Store) Catalog() repository.CatalogRepo { return &CatalogRepo{s: s} }

func (s *Store) Reservations() repository.ReservationRepo { return &ReservationRepo{s: s} }

func (s *Store) Bookings() repository.BookingRepo { return &BookingRepo{s: s} }

type txView struct {
	s *Store
}

func (t *txView) Catalog() repository.CatalogRepo { return &CatalogRepo{s: t.s, bound: true} }

func (t *txView) Reservations() repository.ReservationRepo {
	return &ReservationRepo{s: t.s, bound: true}
}

func (t *txView) Bookings() repository.BookingRepo { return &BookingRepo{s: t.s, bound: true} }

// do runs fn against the current state, opening a transaction of its own
// unless the caller already holds one.
func (s *Store) do(ctx context.Context, bound bool, fn func(st *state) error) error {
	if bound {
		return fn(s.st)
	}
	return s.RunTx(ctx, func(ctx context.Context, _ repository.Tx) error {
		return fn(s.st)
	})
}

func sortSeats(seats []domain.Seat) {
	sort.SliceStable(seats, func(i, j int) bool {
		if seats[i].Row != seats[j].Row {
			return seats[i].Row < seats[j].Row
		}
		return seats[i].Number < seats[j].Number
	})
}
