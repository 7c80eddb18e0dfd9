package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SeatsChanged is a best-effort hint that some seats of an event changed
// status. Receivers re-read the seat map rather than trusting the payload.
type SeatsChanged struct {
	EventID int64             `json:"event_id"`
	SeatIDs []int64           `json:"seat_ids"`
	Status  domain.SeatStatus `json:"status"`
	TsUnix  int64             `json:"ts_unix"`
}

type SeatsPubSub struct {
	rdb *redis.Client
}

func NewSeatsPubSub(rdb *redis.Client) *SeatsPubSub {
	return &SeatsPubSub{rdb: rdb}
}

func (p *SeatsPubSub) PublishSeatsChanged(ctx context.Context, eventID int64, seatIDs []int64, status domain.SeatStatus) error {
	msg := SeatsChanged{
		EventID: eventID,
		SeatIDs: seatIDs,
		Status:  status,
		TsUnix:  time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, ChannelSeatsChanged(eventID), b).Err()
}

// Subscribe delivers notifications for one event until ctx is done. The
// returned channel is closed when the subscription ends.
func (p *SeatsPubSub) Subscribe(ctx context.Context, eventID int64) <-chan SeatsChanged {
	out := make(chan SeatsChanged, 16)

	sub := p.rdb.Subscribe(ctx, ChannelSeatsChanged(eventID))
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel(redis.WithChannelSize(256))
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var ev SeatsChanged
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil || ev.EventID != eventID {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
