package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = member (unique)
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, 'NX', now, member)
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window)

if count > limit then
  redis.call('ZREM', key, member)
  local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local earliestScore = tonumber(earliest[2]) or (now - window)
  local retry_ms = window - (now - earliestScore)
  if retry_ms < 0 then retry_ms = 0 end
  return {0, count - 1, retry_ms}
end
return {1, count, 0}
`

type SlidingWindowLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	script *redis.Script
}

func NewSlidingWindowLimiter(rdb *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
	}
}

// Allow records one hit for scope and reports whether it fits the window.
// Rejected hits are not counted.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, scope string) (allowed bool, retryAfter time.Duration, err error) {
	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{KeyRateLimit(scope)},
		time.Now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	if len(res) != 3 {
		return false, 0, fmt.Errorf("bad script result: %v", res)
	}

	return res[0] == 1, time.Duration(res[2]) * time.Millisecond, nil
}
