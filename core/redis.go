package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginFailurePrefix = "emoji:login:failures:"
	gateDecisionsKey   = "emoji:gate:decisions"
)

// RedisClientRaw exposes the subset of go-redis used by the limiter, metrics and heartbeats.
type RedisClientRaw interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisLoginLimiter counts failed logins per username in a fixed window.
type RedisLoginLimiter struct {
	client      RedisClientRaw
	maxAttempts int
	window      time.Duration
}

func NewRedisLoginLimiter(client RedisClientRaw, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow reports whether another login attempt is permitted for username.
func (l *RedisLoginLimiter) Allow(ctx context.Context, username string) (bool, error) {
	if l.maxAttempts <= 0 {
		return true, nil
	}
	n, err := l.client.Get(ctx, loginFailurePrefix+username).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < l.maxAttempts, nil
}

// The first failure in a window starts its expiry.
var failedLoginScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Failed records a failed attempt for username.
func (l *RedisLoginLimiter) Failed(ctx context.Context, username string) error {
	if l.maxAttempts <= 0 {
		return nil
	}
	return failedLoginScript.Run(ctx, l.client, []string{loginFailurePrefix + username}, strconv.FormatInt(l.window.Milliseconds(), 10)).Err()
}

// Reset clears the failure count after a successful login.
func (l *RedisLoginLimiter) Reset(ctx context.Context, username string) error {
	return l.client.Del(ctx, loginFailurePrefix+username).Err()
}
