package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisTTL       = 30 * time.Second
	DefaultRedisRetry     = 50 * time.Millisecond
	defaultRedisKeyPrefix = "clubsite:lock:"
)

// Release only deletes the key when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX on a shared Redis instance. It lets
// several server processes serialize writes to one newsletter file.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisOption customizes a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets the lock expiry. A crashed holder releases after ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetryInterval sets the polling interval while waiting for the lock.
func WithRetryInterval(interval time.Duration) RedisOption {
	return func(r *Redis) {
		if interval > 0 {
			r.retry = interval
		}
	}
}

// WithKeyPrefix sets the Redis key namespace. A blank prefix keeps the
// default.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis wraps client as a Locker.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	r := &Redis{
		client: client,
		ttl:    DefaultRedisTTL,
		retry:  DefaultRedisRetry,
		prefix: defaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Lock polls SET NX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if deleted == 0 {
			return ErrNotHeld
		}
		return nil
	}, nil
}
