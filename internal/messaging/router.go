package messaging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

type RouterConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRouter wires the payment outcome subscription to h.
func NewRouter(
	sub message.Subscriber,
	h *PaymentHandler,
	wlogger watermill.LoggerAdapter,
	logger *slog.Logger,
	cfg RouterConfig,
) (*message.Router, error) {
	const op = "messaging.NewRouter"

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	router, err := message.NewRouter(message.RouterConfig{}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		metricsMiddleware,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			Multiplier:      2,
			Logger:          wlogger,
		}.Middleware,
		skipMalformed(logger),
	)

	router.AddNoPublisherHandler(
		paymentHandlerName,
		TopicPaymentOutcomes,
		sub,
		h.Handle,
	)

	return router, nil
}
