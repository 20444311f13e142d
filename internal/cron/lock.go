package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps a tick exclusive across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DistributedLock holds a single redis lock key for the duration of a tick.
type DistributedLock struct {
	locker pkgredis.Locker
	key    string
	ttl    time.Duration

	mu   sync.Mutex
	held pkgredis.Lock
}

func NewDistributedLock(locker pkgredis.Locker, key string, ttl time.Duration) (*DistributedLock, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &DistributedLock{locker: locker, key: key, ttl: ttl}, nil
}

// Acquire does not wait: a held key means another replica owns this tick.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, 0)
	if errors.Is(err, pkgredis.ErrLockNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain cron lock: %w", err)
	}
	l.mu.Lock()
	l.held = lock
	l.mu.Unlock()
	return true, nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.mu.Unlock()
	if held == nil {
		return nil
	}
	return held.Release(ctx)
}

// LocalLock is the single-process fallback when redis is not configured.
type LocalLock struct {
	mu   sync.Mutex
	held bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}
