package messaging

const (
	TopicPaymentOutcomes = "payments.outcomes"
	TopicBookingEvents   = "bookings.events"

	ConsumerGroup = "seat-engine"

	paymentHandlerName = "payment_outcomes"
)
