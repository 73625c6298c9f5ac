package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campusclubs/internal/domain"
)

const keyPrefix = "campusclubs:"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a domain.CallbackLocker backed by SET NX with a TTL. A lock is released only by
// the token that acquired it, so a holder whose TTL lapsed cannot free a successor's lock.
type RedisLocker struct {
	client redis.UniversalClient
	script *redis.Script
	ttl    time.Duration
}

// NewRedisLocker returns a locker whose locks expire after ttl.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: client is nil")
	}
	if ttl <= 0 {
		return nil, errors.New("redis locker: ttl must be positive")
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
	}, nil
}

var _ domain.CallbackLocker = (*RedisLocker)(nil)

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	if err := l.script.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
