package httpgin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redisrepo "github.com/kirinyoku/tix-reserve/internal/repository/redis"
	"github.com/kirinyoku/tix-reserve/internal/service"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/kirinyoku/tix-reserve/internal/service/catalog"
	"github.com/kirinyoku/tix-reserve/internal/service/holds"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// IdempotencyStore remembers the response of a hold request per key.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	GetResult(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key string) error
}

// SeatsSubscriber streams seat status changes of one event.
type SeatsSubscriber interface {
	Subscribe(ctx context.Context, eventID int64) <-chan redisrepo.SeatsChanged
}

// Deps groups the optional collaborators of the router; nil disables the
// feature.
type Deps struct {
	Idempotency IdempotencyStore
	Seats       SeatsSubscriber
}

func NewRouter(
	svcs *service.Services,
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), MetricsMiddleware())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API
	r.GET("/events/:id/seats", handleSeatMap(svcs))
	r.GET("/events/:id/availability", handleAvailability(svcs))
	r.GET("/events/:id/seats/stream", handleSeatStream(deps.Seats))

	r.POST("/events/:id/holds", handleCreateHold(svcs, deps.Idempotency))
	r.POST("/holds/:token/renew", handleRenewHold(svcs))
	r.DELETE("/holds/:token", handleReleaseHold(svcs))

	r.POST("/bookings", handleStartCheckout(svcs))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.POST("/bookings/:id/refund", handleRefund(svcs))

	r.POST("/payments/callback", handlePaymentCallback(svcs))

	// Admin-API
	// TODO: add admin middleware
	admin := r.Group("/admin")
	{
		admin.POST("/events/:id/layout", handlePublishLayout(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Seat map with live status
// @Param    id  path  int  true  "Event ID"
// @Success  200  {array}   domain.SeatWithStatus
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Query.SeatMap(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// status changes at expiry instants, so clients must revalidate
		writeJSONWithCache(c, http.StatusOK, seats, "no-cache")
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventCounts
// @Router   /events/{id}/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cnt, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cnt, "no-cache")
	}
}

// @Summary  Stream seat status changes (SSE)
// @Param    id  path  int  true  "Event ID"
// @Produce  text/event-stream
// @Router   /events/{id}/seats/stream [get]
func handleSeatStream(sub SeatsSubscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if sub == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "seat stream unavailable"})
			return
		}

		ctx := c.Request.Context()
		updates := sub.Subscribe(ctx, eventID)
		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		c.Header("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case msg, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent("seats", msg)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			}
		})
	}
}

// @Summary  Request a hold (idempotent)
// @Param    id  path  int  true  "Event ID"
// @Param    X-Session-ID  header  string  true  "Session"
// @Param    req body  CreateHoldRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} HoldResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seats unavailable / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse
// @Router   /events/{id}/holds [post]
func handleCreateHold(
	svcs *service.Services,
	idem IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemHold(eventID, session+":"+idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		hold, err := svcs.Holds.Request(c.Request.Context(), holds.Request{
			EventID:   eventID,
			SessionID: session,
			SeatIDs:   req.SeatIDs,
			TTL:       time.Duration(req.TTLSec) * time.Second,
			RateKey:   "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toHoldResponse(hold)

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Renew a hold
// @Param    token  path  string  true  "Hold token"
// @Param    X-Session-ID  header  string  true  "Session"
// @Param    req body  RenewHoldRequest false "payload"
// @Success  200 {object} HoldResponse
// @Failure  409 {object} ErrorResponse "renewal limit"
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /holds/{token}/renew [post]
func handleRenewHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := parseUUIDParam(c, "token")
		if !ok {
			return
		}
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var req RenewHoldRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		hold, err := svcs.Holds.Renew(c.Request.Context(), token, session, time.Duration(req.TTLSec)*time.Second)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toHoldResponse(hold))
	}
}

// @Summary  Release a hold
// @Param    token  path  string  true  "Hold token"
// @Param    X-Session-ID  header  string  true  "Session"
// @Success  204
// @Router   /holds/{token} [delete]
func handleReleaseHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := parseUUIDParam(c, "token")
		if !ok {
			return
		}
		session, ok := sessionID(c)
		if !ok {
			return
		}
		if err := svcs.Holds.Release(c.Request.Context(), token, session); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Start checkout for a hold
// @Param    X-Session-ID  header  string  true  "Session"
// @Param    req body  StartCheckoutRequest true "payload"
// @Success  201 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /bookings [post]
func handleStartCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var req StartCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		token, err := uuid.Parse(req.HoldToken)
		if err != nil {
			badRequest(c, "invalid hold_token")
			return
		}

		b, err := svcs.Booking.StartCheckout(c.Request.Context(), booking.CheckoutRequest{
			HoldToken: token,
			SessionID: session,
			Email:     req.Email,
			Name:      req.Name,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, b)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Refund a completed booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  409 {object} ErrorResponse
// @Router   /bookings/{id}/refund [post]
func handleRefund(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Refund(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Payment outcome webhook
// @Param    req body  PaymentCallbackRequest true "payload"
// @Success  200 {object} domain.Booking
// @Failure  409 {object} ErrorResponse "seat unavailable after payment"
// @Router   /payments/callback [post]
func handlePaymentCallback(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := uuid.Parse(req.BookingID)
		if err != nil {
			badRequest(c, "invalid booking_id")
			return
		}

		b, err := svcs.Booking.HandlePayment(c.Request.Context(), booking.PaymentOutcome{
			BookingID:  id,
			Succeeded:  req.Succeeded,
			PaymentRef: req.PaymentRef,
			Reason:     req.Reason,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Publish the seat layout of an event (once)
// @Param    id  path  int  true  "Event ID"
// @Param    req body  PublishLayoutRequest true "payload"
// @Success  201 {object} PublishLayoutResponse
// @Failure  409 {object} ErrorResponse "already published"
// @Router   /admin/events/{id}/layout [post]
func handlePublishLayout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req PublishLayoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		n, err := svcs.Catalog.PublishLayout(c.Request.Context(), catalog.Layout{
			EventID: eventID,
			Title:   req.Title,
			Seats:   req.seats(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, PublishLayoutResponse{EventID: eventID, Seats: n})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}
