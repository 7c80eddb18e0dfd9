package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/kirinyoku/tix-reserve/internal/service/catalog"
	"github.com/kirinyoku/tix-reserve/internal/service/holds"
	"github.com/kirinyoku/tix-reserve/internal/service/query"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		unavailable *holds.SeatsUnavailableError
		unknown     *holds.UnknownSeatsError
		limited     *holds.RateLimitedError
		seatLost    *booking.SeatUnavailableAfterPaymentError
	)

	switch {
	// conflicts
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "seats unavailable",
			Kind:  "seats_unavailable",
			Seats: toSeatRefs(unavailable.Seats),
		})
	case errors.Is(err, holds.ErrSeatsConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable", Kind: "seats_unavailable"})
	case errors.As(err, &seatLost):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "payment succeeded but seats are no longer available",
			Kind:      "seat_unavailable_after_payment",
			BookingID: &seatLost.BookingID,
		})
	case errors.Is(err, holds.ErrRenewalLimit):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold cannot be renewed further", Kind: "renewal_limit"})
	case errors.Is(err, catalog.ErrLayoutPublished):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "layout already published", Kind: "layout_published"})
	case errors.Is(err, booking.ErrNotRefundable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking cannot be refunded", Kind: "not_refundable"})

	// expired
	case errors.Is(err, holds.ErrHoldExpired), errors.Is(err, booking.ErrHoldExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: "hold expired", Kind: "hold_expired"})

	// not found
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "seats not found", SeatIDs: unknown.SeatIDs})
	case errors.Is(err, catalog.ErrEventNotFound),
		errors.Is(err, holds.ErrEventNotFound),
		errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, holds.ErrHoldNotFound), errors.Is(err, booking.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "hold not found"})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})

	// invalid input
	case errors.Is(err, holds.ErrNoSeats),
		errors.Is(err, holds.ErrTooManySeats),
		errors.Is(err, holds.ErrSessionRequired),
		errors.Is(err, catalog.ErrInvalidLayout),
		errors.Is(err, booking.ErrInvalidCustomer):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	// throttling and outages
	case errors.As(err, &limited):
		c.Header("Retry-After", retryAfterSeconds(limited.RetryAfter.Seconds()))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, holds.ErrStoreUnavailable),
		errors.Is(err, booking.ErrStoreUnavailable),
		errors.Is(err, query.ErrStoreUnavailable):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable, retry shortly"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func retryAfterSeconds(sec float64) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(sec))))
}
