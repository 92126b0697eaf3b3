package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptTTL auto-clears stale failure streaks; an attacker pausing a day
// starts over, and abandoned counters do not accumulate.
const attemptTTL = 24 * time.Hour

// RedisAttemptStore counts consecutive failed logins per identifier. INCR is
// atomic per key, so exactly one caller observes the threshold count.
type RedisAttemptStore struct {
	client *redis.Client
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (s *RedisAttemptStore) Increment(ctx context.Context, key string) (int64, error) {
	redisKey := "security:attempts:" + key
	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if err := s.client.Expire(ctx, redisKey, attemptTTL).Err(); err != nil {
		// The increment already counted; a missing TTL only means the streak
		// outlives its garbage-collection window, so log instead of failing.
		slog.Default().WarnContext(ctx, "attempt counter ttl not applied",
			"module", "cache",
			"layer", "adapter",
			"operation", "increment",
			"outcome", "failure",
			"key", redisKey,
			"error", err,
		)
	}
	return count, nil
}

func (s *RedisAttemptStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, "security:attempts:"+key).Err()
}
