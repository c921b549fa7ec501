package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle tracks failed logins per account key and locks it after
// too many failures inside the lockout window.
type LoginThrottle interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// RedisLoginThrottle keeps one counter per key with a TTL equal to the lockout window.
type RedisLoginThrottle struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	prefix      string
}

// NewRedisLoginThrottle builds a throttle; maxAttempts <= 0 disables locking.
func NewRedisLoginThrottle(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLoginThrottle {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLoginThrottle{client: client, maxAttempts: maxAttempts, window: window, prefix: "auth:login:failures:"}
}

// Allow reports whether another attempt is permitted and, if not, how long until it is.
func (t *RedisLoginThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if t.maxAttempts <= 0 {
		return true, 0, nil
	}
	k := t.key(key)
	count, err := t.client.Get(ctx, k).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, 0, nil
		}
		return true, 0, err
	}
	if count < t.maxAttempts {
		return true, 0, nil
	}
	ttl, err := t.client.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = t.window
	}
	return false, ttl, nil
}

// RecordFailure increments the counter and restarts the window.
func (t *RedisLoginThrottle) RecordFailure(ctx context.Context, key string) error {
	if t.maxAttempts <= 0 {
		return nil
	}
	k := t.key(key)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, t.window)
		return nil
	})
	return err
}

// Reset clears the counter after a successful login.
func (t *RedisLoginThrottle) Reset(ctx context.Context, key string) error {
	if t.maxAttempts <= 0 {
		return nil
	}
	return t.client.Del(ctx, t.key(key)).Err()
}

func (t *RedisLoginThrottle) key(key string) string {
	return t.prefix + strings.ToLower(strings.TrimSpace(key))
}
