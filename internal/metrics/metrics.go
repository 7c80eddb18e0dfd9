package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_hold_requests_total",
		Help: "Hold requests by outcome",
	}, []string{"outcome"})

	HoldRenewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_hold_renewals_total",
		Help: "Hold renewals by outcome",
	}, []string{"outcome"})

	SeatsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tixreserve_seats_swept_total",
		Help: "Held seat rows moved to expired by the sweep",
	})

	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_booking_transitions_total",
		Help: "Booking status transitions by target status",
	}, []string{"status"})

	SeatUnavailableAfterPayment = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tixreserve_seat_unavailable_after_payment_total",
		Help: "Successful payments whose seats could not be confirmed",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_seat_cache_lookups_total",
		Help: "Seat layout cache lookups by result",
	}, []string{"result"})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_store_retries_total",
		Help: "Retries of store operations after transient failures",
	}, []string{"operation"})

	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"topic", "handler"})

	MessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_messages_processing_failed_total",
		Help: "Total number of messages processing failures",
	}, []string{"topic", "handler"})

	MessageDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "tixreserve_messages_processing_duration_seconds",
		Help:       "Duration of message processing in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"topic", "handler"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tixreserve_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tixreserve_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
