package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type StoreSuite struct {
	suite.Suite

	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	clock     *clock.Manual
	store     *Store

	eventID int64
	seats   []domain.Seat
}

func TestStoreSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("set INTEGRATION_TEST=true to run against a postgres container")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tix",
			"POSTGRES_PASSWORD": "tix",
			"POSTGRES_DB":       "tix",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err, "failed to start postgres container")
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "5432/tcp")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("postgres://tix:tix@%s:%s/tix?sslmode=disable", host, port.Port())
	s.pool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(Migrate(s.ctx, s.pool))

	// Running the schema twice must be harmless.
	s.Require().NoError(Migrate(s.ctx, s.pool))
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *StoreSuite) SetupTest() {
	s.clock = clock.NewManual(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC))
	s.store = NewStore(s.pool, s.clock)
	s.eventID++

	layout := []domain.Seat{
		{Row: "A", Number: 1, TicketType: "standard", PriceCents: 4000},
		{Row: "A", Number: 2, TicketType: "standard", PriceCents: 4000},
		{Row: "B", Number: 1, TicketType: "vip", PriceCents: 9000},
	}
	n, err := s.store.Catalog().PublishLayout(s.ctx, domain.Event{ID: s.eventID, Title: "Show"}, layout)
	s.Require().NoError(err)
	s.Require().EqualValues(3, n)

	s.seats, err = s.store.Catalog().ListSeats(s.ctx, s.eventID)
	s.Require().NoError(err)
	s.Require().Len(s.seats, 3)
}

func (s *StoreSuite) TestPublishLayoutTwiceConflicts() {
	_, err := s.store.Catalog().PublishLayout(s.ctx, domain.Event{ID: s.eventID}, []domain.Seat{{Row: "Z", Number: 1}})
	s.ErrorIs(err, repository.ErrConflict)
}

func (s *StoreSuite) TestTryHoldAllOrNothing() {
	res := s.store.Reservations()

	_, err := res.TryHold(s.ctx, s.eventID, []int64{s.seats[1].ID}, "s1", time.Minute)
	s.Require().NoError(err)

	_, err = res.TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID, s.seats[1].ID, s.seats[2].ID}, "s2", time.Minute)
	var conflict *repository.SeatConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal([]int64{s.seats[1].ID}, conflict.SeatIDs)

	active, err := res.ListActive(s.ctx, s.eventID)
	s.Require().NoError(err)
	s.Len(active, 1)
}

func (s *StoreSuite) TestTryHoldDuplicateSeatIDs() {
	res := s.store.Reservations()

	hold, err := res.TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID, s.seats[0].ID}, "s1", time.Minute)
	s.Require().NoError(err)
	s.Equal([]int64{s.seats[0].ID}, hold.SeatIDs)

	active, err := res.ListActive(s.ctx, s.eventID)
	s.Require().NoError(err)
	s.Len(lo.Filter(active, func(r domain.SeatReservation, _ int) bool { return r.SeatID == s.seats[0].ID }), 1)
}

func (s *StoreSuite) TestTryHoldUnknownSeat() {
	_, err := s.store.Reservations().TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID, -1}, "s1", time.Minute)
	var nf *repository.SeatsNotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal([]int64{-1}, nf.SeatIDs)
}

func (s *StoreSuite) TestConcurrentHoldsSingleWinner() {
	const contenders = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Reservations().TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID}, "s", time.Minute)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, repository.ErrConflict) && !repository.IsRetryable(err) {
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
}

func (s *StoreSuite) TestExpiryRenewConfirmLifecycle() {
	res := s.store.Reservations()

	hold, err := res.TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID}, "s1", time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(30 * time.Second)
	renewed, err := res.RenewHold(s.ctx, hold.Token, time.Minute)
	s.Require().NoError(err)
	s.Equal(1, renewed.Renewals)
	s.True(renewed.ExpiresAt.Equal(s.clock.Now().Add(time.Minute)))

	bookingID := uuid.New()
	s.Require().NoError(res.ConfirmHold(s.ctx, hold.Token, bookingID))
	s.Require().NoError(res.ConfirmHold(s.ctx, hold.Token, bookingID))

	s.clock.Advance(time.Hour)
	swept, err := res.SweepExpired(s.ctx, 100)
	s.Require().NoError(err)
	s.Empty(swept)

	got, err := res.GetHold(s.ctx, hold.Token)
	s.Require().NoError(err)
	s.Equal(domain.ReservationConfirmed, got.State)

	n, err := res.ReleaseBooked(s.ctx, bookingID)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *StoreSuite) TestLapsedHoldIsSupersededAndSwept() {
	res := s.store.Reservations()

	first, err := res.TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID, s.seats[1].ID}, "s1", time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	s.ErrorIs(res.ConfirmHold(s.ctx, first.Token, uuid.New()), repository.ErrHoldExpired)

	_, err = res.TryHold(s.ctx, s.eventID, []int64{s.seats[0].ID}, "s2", time.Minute)
	s.Require().NoError(err)

	swept, err := res.SweepExpired(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(swept, 1)
	s.Equal(first.Token, swept[0].HoldToken)
	s.EqualValues(1, swept[0].Seats, "seat 1 was already superseded by the second hold")
}

func (s *StoreSuite) TestRunTxRollsBack() {
	boom := errors.New("boom")

	err := s.store.RunTx(s.ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Reservations().TryHold(ctx, s.eventID, []int64{s.seats[2].ID}, "s1", time.Minute); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	active, err := s.store.Reservations().ListActive(s.ctx, s.eventID)
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *StoreSuite) TestBookingsCompareAndSet() {
	repo := s.store.Bookings()

	b := &domain.Booking{
		ID:            uuid.New(),
		EventID:       s.eventID,
		HoldToken:     uuid.New(),
		SessionID:     "s1",
		CustomerEmail: "a@example.com",
		Items:         []domain.BookingItem{{SeatID: s.seats[0].ID, Row: "A", Number: 1, PriceCents: 4000}},
		TotalCents:    4000,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentPending,
	}
	s.Require().NoError(repo.Create(s.ctx, b))

	dup := *b
	dup.ID = uuid.New()
	s.ErrorIs(repo.Create(s.ctx, &dup), repository.ErrConflict)

	s.Require().NoError(repo.UpdateStatus(s.ctx, b.ID, domain.BookingPending, domain.BookingCompleted, domain.PaymentSucceeded, "pay_1"))
	s.ErrorIs(repo.UpdateStatus(s.ctx, b.ID, domain.BookingPending, domain.BookingCancelled, "", ""), repository.ErrConflict)
	s.ErrorIs(repo.UpdateStatus(s.ctx, uuid.New(), domain.BookingPending, domain.BookingCancelled, "", ""), repository.ErrNotFound)

	got, err := repo.GetByHoldToken(s.ctx, b.HoldToken)
	s.Require().NoError(err)
	s.Equal(domain.BookingCompleted, got.Status)
	s.Equal("pay_1", got.PaymentRef)
	require.Len(s.T(), got.Items, 1)
	s.Equal(s.seats[0].ID, got.Items[0].SeatID)
}
