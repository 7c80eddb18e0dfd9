package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository/memory"
	"github.com/kirinyoku/tix-reserve/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventID int64 = 3

var start = time.Date(2026, 6, 12, 20, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) types() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []domain.SeatStatus
}

func (f *fakeNotifier) PublishSeatsChanged(_ context.Context, _ int64, _ []int64, status domain.SeatStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

type fixture struct {
	svc       *Service
	store     *memory.Store
	clock     *clock.Manual
	publisher *fakePublisher
	notifier  *fakeNotifier
	seats     []domain.Seat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewManual(start)
	store := memory.New(clk)
	_, err := store.Catalog().PublishLayout(context.Background(), domain.Event{ID: eventID, Title: "Gala"}, []domain.Seat{
		{Row: "B", Number: 1, TicketType: "vip", PriceCents: 12000},
		{Row: "B", Number: 2, TicketType: "standard", PriceCents: 8000},
		{Row: "B", Number: 3, TicketType: "standard", PriceCents: 8000},
	})
	require.NoError(t, err)
	seats, err := store.Catalog().ListSeats(context.Background(), eventID)
	require.NoError(t, err)

	pub := &fakePublisher{}
	n := &fakeNotifier{}
	svc, err := New(store, clk, pub, n, nil, Config{
		CheckoutTimeout: 10 * time.Minute,
		HoldTTL:         15 * time.Minute,
		Retry:           retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: clk, publisher: pub, notifier: n, seats: seats}
}

func (f *fixture) hold(t *testing.T, session string, seats ...domain.Seat) domain.Hold {
	t.Helper()

	seatIDs := make([]int64, 0, len(seats))
	for _, s := range seats {
		seatIDs = append(seatIDs, s.ID)
	}
	h, err := f.store.Reservations().TryHold(context.Background(), eventID, seatIDs, session, 15*time.Minute)
	require.NoError(t, err)
	return h
}

func (f *fixture) checkout(t *testing.T, h domain.Hold) *domain.Booking {
	t.Helper()

	b, err := f.svc.StartCheckout(context.Background(), CheckoutRequest{
		HoldToken: h.Token,
		SessionID: h.SessionID,
		Email:     "ada@example.com",
		Name:      "Ada",
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) seatStatus(t *testing.T, seatID int64) domain.SeatStatus {
	t.Helper()

	active, err := f.store.Reservations().ListActive(context.Background(), eventID)
	require.NoError(t, err)
	var rows []domain.SeatReservation
	for _, r := range active {
		if r.SeatID == seatID {
			rows = append(rows, r)
		}
	}
	return domain.EffectiveStatus(rows, f.clock.Now())
}

func TestNew_RejectsCheckoutLongerThanHold(t *testing.T) {
	_, err := New(memory.New(clock.Real{}), clock.Real{}, nil, nil, nil, Config{
		CheckoutTimeout: 20 * time.Minute,
		HoldTTL:         15 * time.Minute,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartCheckout(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, "s1", f.seats[0], f.seats[1])

	b := f.checkout(t, h)

	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, domain.PaymentPending, b.PaymentStatus)
	assert.Equal(t, 20000, b.TotalCents)
	assert.Len(t, b.Items, 2)
	assert.Equal(t, "B", b.Items[0].Row)

	again := f.checkout(t, h)
	assert.Equal(t, b.ID, again.ID, "checkout is idempotent per hold")
}

func TestStartCheckout_Rejects(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, "s1", f.seats[0])
	ctx := context.Background()

	_, err := f.svc.StartCheckout(ctx, CheckoutRequest{HoldToken: h.Token, SessionID: "s1", Email: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCustomer)

	_, err = f.svc.StartCheckout(ctx, CheckoutRequest{HoldToken: h.Token, SessionID: "other", Email: "a@b.co"})
	assert.ErrorIs(t, err, ErrHoldNotFound)

	_, err = f.svc.StartCheckout(ctx, CheckoutRequest{HoldToken: uuid.New(), SessionID: "s1", Email: "a@b.co"})
	assert.ErrorIs(t, err, ErrHoldNotFound)

	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.StartCheckout(ctx, CheckoutRequest{HoldToken: h.Token, SessionID: "s1", Email: "a@b.co"})
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestHandlePayment_SuccessBooksSeats(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, "s1", f.seats[0])
	b := f.checkout(t, h)
	ctx := context.Background()

	got, err := f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "pay_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
	assert.Equal(t, domain.PaymentSucceeded, got.PaymentStatus)

	f.clock.Advance(time.Hour)
	assert.Equal(t, domain.SeatBooked, f.seatStatus(t, f.seats[0].ID), "confirmed seats never expire")

	// Redelivery is a no-op.
	got, err = f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "pay_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
	assert.Equal(t, []EventType{EventBookingCompleted}, f.publisher.types())

	// A late failure does not undo a completed booking.
	got, err = f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: false})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
}

func TestHandlePayment_FailureReleasesHold(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, "s1", f.seats[1])
	b := f.checkout(t, h)

	got, err := f.svc.HandlePayment(context.Background(), PaymentOutcome{BookingID: b.ID, Succeeded: false, Reason: "card declined"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, domain.SeatAvailable, f.seatStatus(t, f.seats[1].ID))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "card declined", f.publisher.events[0].Reason)
	assert.Contains(t, f.notifier.statuses, domain.SeatAvailable)
}

func TestHandlePayment_SeatLostAfterPayment(t *testing.T) {
	f := newFixture(t)
	h := f.hold(t, "s1", f.seats[2])
	b := f.checkout(t, h)
	ctx := context.Background()

	// The hold lapses and another session takes the seat.
	f.clock.Advance(16 * time.Minute)
	f.hold(t, "s2", f.seats[2])

	got, err := f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "pay_9"})
	var lost *SeatUnavailableAfterPaymentError
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, b.ID, lost.BookingID)
	assert.Equal(t, "pay_9", lost.PaymentRef)
	assert.Equal(t, domain.BookingRequiresReview, got.Status)
	assert.Equal(t, domain.SeatHeld, f.seatStatus(t, f.seats[2].ID), "the other session keeps its hold")

	_, err = f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "pay_9"})
	assert.ErrorIs(t, err, ErrSeatUnavailableAfterPayment, "redelivery reports the same problem")
	assert.Equal(t, []EventType{EventSeatUnavailableAfterPayment}, f.publisher.types())
}

func TestHandlePayment_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandlePayment(context.Background(), PaymentOutcome{BookingID: uuid.New(), Succeeded: true})
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestExpireAbandoned(t *testing.T) {
	f := newFixture(t)
	stale := f.checkout(t, f.hold(t, "s1", f.seats[0]))

	f.clock.Advance(6 * time.Minute)
	fresh := f.checkout(t, f.hold(t, "s2", f.seats[1]))

	f.clock.Advance(5 * time.Minute)
	n, err := f.svc.ExpireAbandoned(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingExpired, got.Status)
	assert.Equal(t, domain.SeatAvailable, f.seatStatus(t, f.seats[0].ID))

	got, err = f.svc.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)

	// Payment arriving after expiry is flagged for review.
	_, err = f.svc.HandlePayment(context.Background(), PaymentOutcome{BookingID: stale.ID, Succeeded: true, PaymentRef: "late"})
	assert.ErrorIs(t, err, ErrSeatUnavailableAfterPayment)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	b := f.checkout(t, f.hold(t, "s1", f.seats[0]))
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "p"})
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, domain.SeatAvailable, f.seatStatus(t, f.seats[0].ID))
	assert.Equal(t, []EventType{EventBookingCompleted, EventBookingRefunded}, f.publisher.types())

	// A success redelivered after the refund leaves the booking alone.
	got, err = f.svc.HandlePayment(ctx, PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "p"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, domain.PaymentSucceeded, got.PaymentStatus)
	assert.Equal(t, []EventType{EventBookingCompleted, EventBookingRefunded}, f.publisher.types())

	_, err = f.svc.Refund(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	b := f.checkout(t, f.hold(t, "s1", f.seats[0]))

	got, err := f.svc.HandlePayment(context.Background(), PaymentOutcome{BookingID: b.ID, Succeeded: true, PaymentRef: "p"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
}
