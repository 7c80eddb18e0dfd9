package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-reserve/internal/clock"
	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/repository/memory"
	"github.com/kirinyoku/tix-reserve/internal/service"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/kirinyoku/tix-reserve/internal/service/holds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIdem struct {
	mu      sync.Mutex
	locks   map[string]bool
	results map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, results: map[string]string{}}
}

func (m *memIdem) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memIdem) SaveResult(_ context.Context, key string, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = payload
	return nil
}

func (m *memIdem) GetResult(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[key]
	return v, ok, nil
}

func (m *memIdem) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

type testAPI struct {
	router *gin.Engine
	clock  *clock.Manual
	seats  []domain.Seat
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC))
	store := memory.New(clk)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svcs, err := service.NewServices(store, clk, service.Deps{}, logger, service.Config{
		Holds: holds.Config{DefaultTTL: 5 * time.Minute, MaxRenewals: 1},
		Booking: booking.Config{
			CheckoutTimeout: 5 * time.Minute,
		},
	})
	require.NoError(t, err)

	api := &testAPI{
		router: NewRouter(svcs, Deps{Idempotency: newMemIdem()}, logger),
		clock:  clk,
	}

	rec := api.do(t, http.MethodPost, "/admin/events/1/layout", "", PublishLayoutRequest{
		Title: "Opening night",
		Seats: []SeatInput{
			{Row: "A", Number: 1, PriceCents: 2500},
			{Row: "A", Number: 2, PriceCents: 2500},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	api.seats, err = store.Catalog().ListSeats(context.Background(), 1)
	require.NoError(t, err)

	return api
}

func (a *testAPI) do(t *testing.T, method, path, session string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(headerSessionID, session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) hold(t *testing.T, session string, seatIDs ...int64) HoldResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/events/1/holds", session, CreateHoldRequest{SeatIDs: seatIDs})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[HoldResponse](t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestCreateHold(t *testing.T) {
	api := newTestAPI(t)
	a1, a2 := api.seats[0].ID, api.seats[1].ID

	h := api.hold(t, "alice", a1)
	assert.Equal(t, []int64{a1}, h.SeatIDs)

	rec := api.do(t, http.MethodPost, "/events/1/holds", "bob", CreateHoldRequest{SeatIDs: []int64{a1, a2}})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "seats_unavailable", body.Kind)
	assert.Equal(t, []SeatRef{{ID: a1, Row: "A", Number: 1}}, body.Seats)

	rec = api.do(t, http.MethodPost, "/events/1/holds", "", CreateHoldRequest{SeatIDs: []int64{a2}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "session header is required")

	rec = api.do(t, http.MethodPost, "/events/9/holds", "bob", CreateHoldRequest{SeatIDs: []int64{a2}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateHold_IdempotencyKeyReplays(t *testing.T) {
	api := newTestAPI(t)
	seat := api.seats[1].ID

	first := api.do(t, http.MethodPost, "/events/1/holds", "alice", CreateHoldRequest{SeatIDs: []int64{seat}}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := api.do(t, http.MethodPost, "/events/1/holds", "alice", CreateHoldRequest{SeatIDs: []int64{seat}}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "k1", second.Header().Get("Idempotency-Key"))
}

func TestSeatMap_ETag(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/events/1/seats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = api.do(t, http.MethodGet, "/events/1/seats", "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	api.hold(t, "alice", api.seats[0].ID)

	rec = api.do(t, http.MethodGet, "/events/1/seats", "", nil, "If-None-Match", etag)
	require.Equal(t, http.StatusOK, rec.Code, "a new hold changes the representation")
	seats := decode[[]domain.SeatWithStatus](t, rec)
	assert.Equal(t, domain.SeatHeld, seats[0].Status)

	api.clock.Advance(5 * time.Minute)
	rec = api.do(t, http.MethodGet, "/events/1/availability", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EventCounts{Available: 2, Total: 2}, decode[domain.EventCounts](t, rec))
}

func TestRenewAndRelease(t *testing.T) {
	api := newTestAPI(t)
	h := api.hold(t, "alice", api.seats[0].ID)
	path := "/holds/" + h.HoldToken

	api.clock.Advance(time.Minute)
	rec := api.do(t, http.MethodPost, path+"/renew", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[HoldResponse](t, rec).Renewals)

	rec = api.do(t, http.MethodPost, path+"/renew", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "renewal_limit", decode[ErrorResponse](t, rec).Kind)

	rec = api.do(t, http.MethodDelete, path, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "release is idempotent")

	rec = api.do(t, http.MethodPost, path+"/renew", "alice", nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = api.do(t, http.MethodDelete, "/holds/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutPaymentRefund(t *testing.T) {
	api := newTestAPI(t)
	h := api.hold(t, "alice", api.seats[0].ID, api.seats[1].ID)

	rec := api.do(t, http.MethodPost, "/bookings", "alice", StartCheckoutRequest{HoldToken: h.HoldToken, Email: "alice@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[domain.Booking](t, rec)
	assert.Equal(t, 5000, b.TotalCents)
	assert.Equal(t, domain.BookingPending, b.Status)

	rec = api.do(t, http.MethodPost, "/payments/callback", "", PaymentCallbackRequest{BookingID: b.ID.String(), Succeeded: true, PaymentRef: "pi_1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.BookingCompleted, decode[domain.Booking](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/bookings/"+b.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pi_1", decode[domain.Booking](t, rec).PaymentRef)

	rec = api.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/refund", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.BookingCancelled, decode[domain.Booking](t, rec).Status)

	rec = api.do(t, http.MethodPost, "/bookings/"+b.ID.String()+"/refund", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentAfterHoldLapsed(t *testing.T) {
	api := newTestAPI(t)
	h := api.hold(t, "alice", api.seats[0].ID)

	rec := api.do(t, http.MethodPost, "/bookings", "alice", StartCheckoutRequest{HoldToken: h.HoldToken, Email: "alice@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[domain.Booking](t, rec)

	api.clock.Advance(5 * time.Minute)

	rec = api.do(t, http.MethodPost, "/payments/callback", "", PaymentCallbackRequest{BookingID: b.ID.String(), Succeeded: true, PaymentRef: "pi_2"})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "seat_unavailable_after_payment", body.Kind)
	require.NotNil(t, body.BookingID)
	assert.Equal(t, b.ID, *body.BookingID)

	rec = api.do(t, http.MethodPost, "/bookings", "alice", StartCheckoutRequest{HoldToken: h.HoldToken, Email: "alice@example.com"})
	assert.Equal(t, http.StatusCreated, rec.Code, "checkout stays idempotent per hold")
}

func TestPublishLayoutOnce(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/admin/events/1/layout", "", PublishLayoutRequest{
		Title: "Again",
		Seats: []SeatInput{{Row: "B", Number: 1}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/admin/events/2/layout", "", PublishLayoutRequest{Title: "Empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeatStreamWithoutSubscriber(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/events/1/seats/stream", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
