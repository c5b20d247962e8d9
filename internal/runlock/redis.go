package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ErrLockLost is returned by Release when the lock expired before release.
var ErrLockLost = errors.New("runlock: lock expired before release")

// RedisLocker is a Locker shared by all replicas using one Redis instance.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	prefix    string
	pollEvery time.Duration
}

// RedisOption customises a RedisLocker.
type RedisOption func(*RedisLocker)

// WithPrefix sets the key prefix (default "runlock:").
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// WithPollInterval sets how often a blocked Acquire retries.
func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.pollEvery = d }
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder
// can keep the lock.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	l := &RedisLocker{
		client:    client,
		ttl:       ttl,
		prefix:    "runlock:",
		pollEvery: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollEvery)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrNotAcquired
			}
			return nil, fmt.Errorf("runlock: acquire %s: %w", fullKey, err)
		}
		if ok {
			return &redisLock{client: l.client, key: fullKey, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-ticker.C:
		}
	}
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("runlock: release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
