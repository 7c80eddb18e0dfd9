package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/kirinyoku/tix-reserve/internal/service/booking"
	"github.com/redis/go-redis/v9"
)

// NewRedisPublisher creates a redis streams publisher.
func NewRedisPublisher(rdb *redis.Client, logger watermill.LoggerAdapter) (message.Publisher, error) {
	const op = "messaging.NewRedisPublisher"

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return pub, nil
}

// NewRedisSubscriber creates a redis streams subscriber in the engine's
// consumer group, so replicas share the payment outcome stream.
func NewRedisSubscriber(rdb *redis.Client, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	const op = "messaging.NewRedisSubscriber"

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		ConsumerGroup: ConsumerGroup,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sub, nil
}

// BookingEventPublisher publishes booking transitions to TopicBookingEvents
// as JSON, with the event type in the "type" metadata.
type BookingEventPublisher struct {
	pub message.Publisher
}

func NewBookingEventPublisher(pub message.Publisher) *BookingEventPublisher {
	return &BookingEventPublisher{pub: pub}
}

func (p *BookingEventPublisher) Publish(ctx context.Context, ev booking.Event) error {
	const op = "messaging.BookingEventPublisher.Publish"

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("booking_id", ev.BookingID.String())
	msg.SetContext(ctx)

	if err := p.pub.Publish(TopicBookingEvents, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
