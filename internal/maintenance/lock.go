package maintenance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultLockTTL = 55 * time.Minute

// Lock guards a sweep so only one worker replica runs it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a SETNX lease keyed per environment. The stored value is a
// random owner token so a replica never frees a lease it lost to expiry.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, errors.Wrap(err, "acquire maintenance lock")
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release frees the lease only if this replica still owns it. The owner check
// and the delete run as one script so an expired lease taken over by another
// replica is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.store.DelIfValue(ctx, l.key, l.owner); err != nil {
		return errors.Wrap(err, "release maintenance lock")
	}
	l.owner = ""
	return nil
}
