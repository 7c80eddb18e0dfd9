package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK"
	idemResult = "RES:"
)

// IdempotencyStore remembers the response of a request keyed by its
// Idempotency-Key. A key is either locked by an in-flight request or holds
// the serialized result.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResult+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemResult) {
		return strings.TrimPrefix(v, idemResult), true, nil
	}

	return "", false, nil
}

// Release drops an in-flight lock so the client can retry. Stored results
// are left alone.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if v != idemLock {
		return nil
	}
	return s.rdb.Del(ctx, key).Err()
}
