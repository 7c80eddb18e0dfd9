package messaging

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/kirinyoku/tix-reserve/internal/metrics"
)

func metricsMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		handler := message.HandlerNameFromCtx(msg.Context())

		start := time.Now()
		msgs, err := next(msg)

		metrics.MessageDuration.WithLabelValues(topic, handler).Observe(time.Since(start).Seconds())
		metrics.MessagesProcessed.WithLabelValues(topic, handler).Inc()
		if err != nil {
			metrics.MessagesFailed.WithLabelValues(topic, handler).Inc()
		}

		return msgs, err
	}
}

// skipMalformed acks messages that can never be decoded instead of letting
// the retry middleware spin on them.
func skipMalformed(logger *slog.Logger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := next(msg)
			if err != nil && errors.Is(err, ErrMalformedMessage) {
				logger.Warn("skipping malformed message",
					slog.String("message_uuid", msg.UUID),
					slog.Any("err", err),
				)
				return nil, nil
			}
			return msgs, err
		}
	}
}
