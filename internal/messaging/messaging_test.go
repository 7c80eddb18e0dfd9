package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu       sync.Mutex
	calls    []booking.PaymentOutcome
	failures int
	err      error
}

func (f *fakeProcessor) HandlePayment(_ context.Context, p booking.PaymentOutcome) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, p)
	if f.failures > 0 {
		f.failures--
		return nil, booking.ErrStoreUnavailable
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Booking{ID: p.BookingID, Status: domain.BookingCompleted}, nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func outcomeMessage(t *testing.T, p booking.PaymentOutcome) *message.Message {
	t.Helper()

	payload, err := json.Marshal(p)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), payload)
}

func TestPaymentHandler_Handle(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		msg     func(t *testing.T) *message.Message
		err     error
		wantErr error
		calls   int
	}{
		{
			name:  "applied",
			msg:   func(t *testing.T) *message.Message { return outcomeMessage(t, booking.PaymentOutcome{BookingID: id, Succeeded: true}) },
			calls: 1,
		},
		{
			name:    "not json",
			msg:     func(*testing.T) *message.Message { return message.NewMessage("1", []byte("{")) },
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing booking id",
			msg:     func(t *testing.T) *message.Message { return outcomeMessage(t, booking.PaymentOutcome{Succeeded: true}) },
			wantErr: ErrMalformedMessage,
		},
		{
			name:  "seat lost is acked",
			msg:   func(t *testing.T) *message.Message { return outcomeMessage(t, booking.PaymentOutcome{BookingID: id, Succeeded: true}) },
			err:   &booking.SeatUnavailableAfterPaymentError{BookingID: id},
			calls: 1,
		},
		{
			name:  "unknown booking is acked",
			msg:   func(t *testing.T) *message.Message { return outcomeMessage(t, booking.PaymentOutcome{BookingID: id}) },
			err:   booking.ErrBookingNotFound,
			calls: 1,
		},
		{
			name:    "store outage is retried",
			msg:     func(t *testing.T) *message.Message { return outcomeMessage(t, booking.PaymentOutcome{BookingID: id}) },
			err:     booking.ErrStoreUnavailable,
			wantErr: booking.ErrStoreUnavailable,
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{err: tt.err}
			h := NewPaymentHandler(p, quietLogger())

			err := h.Handle(tt.msg(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.calls, p.count())
		})
	}
}

func TestRouter_ProcessesOutcomesAndRetries(t *testing.T) {
	wlogger := NewSlogAdapter(quietLogger())
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10, Persistent: true}, wlogger)
	defer pubSub.Close()

	p := &fakeProcessor{failures: 2}
	router, err := NewRouter(pubSub, NewPaymentHandler(p, quietLogger()), wlogger, quietLogger(), RouterConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	require.NoError(t, pubSub.Publish(TopicPaymentOutcomes, message.NewMessage(watermill.NewUUID(), []byte("garbage"))))
	require.NoError(t, pubSub.Publish(TopicPaymentOutcomes, outcomeMessage(t, booking.PaymentOutcome{BookingID: uuid.New(), Succeeded: true})))

	assert.Eventually(t, func() bool { return p.count() == 3 }, 5*time.Second, 10*time.Millisecond,
		"two transient failures then success; the malformed message never reaches the service")
}

func TestBookingEventPublisher(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1, Persistent: true}, NewSlogAdapter(quietLogger()))
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := pubSub.Subscribe(ctx, TopicBookingEvents)
	require.NoError(t, err)

	ev := booking.Event{
		Type:      booking.EventBookingCompleted,
		BookingID: uuid.New(),
		EventID:   4,
		Status:    domain.BookingCompleted,
		SeatIDs:   []int64{1, 2},
	}
	require.NoError(t, NewBookingEventPublisher(pubSub).Publish(ctx, ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "BookingCompleted", msg.Metadata.Get("type"))

		var got booking.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, ev.BookingID, got.BookingID)
		assert.Equal(t, []int64{1, 2}, got.SeatIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("booking event was not published")
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var a watermill.LoggerAdapter = NewSlogAdapter(nil)
	a = a.With(watermill.LogFields{"topic": TopicPaymentOutcomes})

	assert.NotPanics(t, func() {
		a.Error("boom", errors.New("x"), nil)
		a.Trace("trace", watermill.LogFields{"n": 1})
	})
}
