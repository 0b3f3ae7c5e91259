package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"graphi/backend/internal/apperr"
)

// Locker hands out short exclusive leases on a key. A key that is already
// held fails with apperr.ErrBusy instead of waiting.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type redisLocker struct {
	client *redislock.Client
}

// NewRedisLocker shares leases across processes through Redis.
func NewRedisLocker(client redislock.RedisClient) Locker {
	return redisLocker{client: redislock.New(client)}
}

func (l redisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.ErrBusy.WithDetail("%s is locked by another operation", key)
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker keeps leases in process memory.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *localLocker) Obtain(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, apperr.ErrBusy.WithDetail("%s is locked by another operation", key)
	}
	until := now.Add(ttl)
	l.held[key] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
