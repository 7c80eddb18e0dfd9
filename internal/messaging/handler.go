package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
)

var ErrMalformedMessage = errors.New("malformed message")

type PaymentProcessor interface {
	HandlePayment(ctx context.Context, p booking.PaymentOutcome) (*domain.Booking, error)
}

// PaymentHandler feeds payment outcomes from the stream into the booking
// finalizer. Outcomes are delivered at least once.
type PaymentHandler struct {
	bookings PaymentProcessor
	log      *slog.Logger
}

func NewPaymentHandler(bookings PaymentProcessor, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{bookings: bookings, log: logger}
}

// Handle returns an error only when a redelivery could succeed; everything
// else is acked.
func (h *PaymentHandler) Handle(msg *message.Message) error {
	var outcome booking.PaymentOutcome
	if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if outcome.BookingID == uuid.Nil {
		return fmt.Errorf("%w: booking_id is required", ErrMalformedMessage)
	}

	b, err := h.bookings.HandlePayment(msg.Context(), outcome)
	switch {
	case err == nil:
		h.log.Info("payment outcome applied",
			slog.String("booking_id", b.ID.String()),
			slog.String("status", string(b.Status)),
		)
		return nil
	case errors.Is(err, booking.ErrSeatUnavailableAfterPayment):
		// Already recorded as requires_review and announced on the
		// booking events topic.
		h.log.Warn("payment needs review", slog.String("booking_id", outcome.BookingID.String()), slog.Any("err", err))
		return nil
	case errors.Is(err, booking.ErrBookingNotFound):
		h.log.Warn("payment outcome for unknown booking", slog.String("booking_id", outcome.BookingID.String()))
		return nil
	}

	return err
}
