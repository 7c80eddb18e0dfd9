package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/kirinyoku/tix-reserve/internal/domain"
	"github.com/kirinyoku/tix-reserve/internal/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SeatCache is a read-through cache of published seat layouts. A layout
// never changes once published, so entries leave only by TTL or
// InvalidateEvent. Reservation state is never cached here.
type SeatCache struct {
	rdb *redis.Client
	sf  singleflight.Group
	log *slog.Logger
}

func NewSeatCache(client *redis.Client, logger *slog.Logger) *SeatCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeatCache{rdb: client, log: logger}
}

// Seats returns the layout of eventID, calling load on a miss and caching
// its result for ttl. Concurrent misses for one event share a single load.
// Redis failures are logged and served from load; load errors are returned
// as is and nothing is cached.
func (c *SeatCache) Seats(
	ctx context.Context,
	eventID int64,
	ttl time.Duration,
	load func(ctx context.Context) ([]domain.Seat, error),
) ([]domain.Seat, error) {
	key := KeySeatCatalog(eventID)

	if seats, ok := c.lookup(ctx, key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return seats, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// Another caller may have filled the key while we waited.
		if seats, ok := c.lookup(ctx, key); ok {
			return seats, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		seats, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, seats, ttl)
		return seats, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers sharing a flight must not share the backing array.
	return slices.Clone(v.([]domain.Seat)), nil
}

// InvalidateEvent drops the cached layout of eventID.
func (c *SeatCache) InvalidateEvent(ctx context.Context, eventID int64) error {
	return c.rdb.Del(ctx, KeySeatCatalog(eventID)).Err()
}

func (c *SeatCache) lookup(ctx context.Context, key string) ([]domain.Seat, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("seat cache read failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}

	var seats []domain.Seat
	if err := json.Unmarshal(raw, &seats); err != nil {
		c.log.Warn("dropping undecodable seat cache entry", slog.String("key", key), slog.Any("err", err))
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false
	}

	return seats, true
}

func (c *SeatCache) store(ctx context.Context, key string, seats []domain.Seat, ttl time.Duration) {
	raw, err := json.Marshal(seats)
	if err != nil {
		c.log.Warn("seat cache encode failed", slog.String("key", key), slog.Any("err", err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("seat cache write failed", slog.String("key", key), slog.Any("err", err))
	}
}
