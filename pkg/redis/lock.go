package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when another holder owns the lock for the whole wait budget.
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker hands out short-lived mutual exclusion scoped to a key, shared across processes.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, wait time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// RedisLocker implements Locker on top of bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewLocker builds a Locker on the raw connection.
func NewLocker(raw redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(raw)}
}

// Obtain tries to take key for ttl. When wait is positive the call retries with a
// linear backoff until the wait budget runs out.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration, wait time.Duration) (Lock, error) {
	opts := &redislock.Options{}
	if wait > 0 {
		backoff := wait / 20
		if backoff < 10*time.Millisecond {
			backoff = 10 * time.Millisecond
		}
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(backoff), int(wait/backoff))
	}
	lock, err := l.client.Obtain(ctx, key, ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return &redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l *redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
