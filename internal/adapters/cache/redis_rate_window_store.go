package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// slideScript trims, counts and conditionally appends in one atomic step.
// Scores are unix milliseconds: Lua numbers lose integer precision past 2^53,
// which nanosecond timestamps would exceed. Uniqueness comes from the random
// member, not the score, so same-millisecond requests never collapse.
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
  redis.call('ZADD', key, now_ms, member)
  count = count + 1
  admitted = 1
end
redis.call('PEXPIRE', key, window_ms)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_ms = 0
if oldest[2] then
  oldest_ms = tonumber(oldest[2])
end
return {admitted, count, oldest_ms}
`)

// RedisRateWindowStore implements sliding-window request logs as Redis sorted
// sets, one per identifier:action key.
type RedisRateWindowStore struct {
	client *redis.Client
}

func NewRedisRateWindowStore(client *redis.Client) *RedisRateWindowStore {
	return &RedisRateWindowStore{client: client}
}

func (s *RedisRateWindowStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (ports.SlideResult, error) {
	raw, err := slideScript.Run(ctx, s.client,
		[]string{"security:rate:" + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Result()
	if err != nil {
		return ports.SlideResult{}, fmt.Errorf("run slide script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return ports.SlideResult{}, fmt.Errorf("unexpected slide script reply: %v", raw)
	}
	admitted, _ := reply[0].(int64)
	count, _ := reply[1].(int64)
	oldestMs, _ := reply[2].(int64)

	result := ports.SlideResult{Admitted: admitted == 1, Count: int(count)}
	if oldestMs > 0 {
		result.OldestAt = time.UnixMilli(oldestMs).UTC()
	}
	return result, nil
}
