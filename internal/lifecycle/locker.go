package lifecycle

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLocker serializes dedup checks across service instances. Lock
// acquisition retries briefly so two near-simultaneous uploads queue instead
// of both failing.
type RedisLocker struct {
	client *redislock.Client
	log    zerolog.Logger
}

// NewRedisLocker wraps a redis client in a distributed lock provider.
func NewRedisLocker(rdb redis.UniversalClient, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), log: log}
}

// Lock acquires the named lock and returns its release function.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}, nil
}
