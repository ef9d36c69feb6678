package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrLocked = errors.New("lock held")

// Locker hands out short-lived exclusive locks, e.g. one check-in per user
// at a time. It narrows races; the database constraint still decides.
type Locker struct {
	kv     KVStore
	ttl    time.Duration
	prefix string
}

func NewLocker(kv KVStore, prefix string, ttl time.Duration) *Locker {
	return &Locker{kv: kv, prefix: prefix, ttl: ttl}
}

// Acquire returns ErrLocked when someone else holds key. The returned
// release func is safe to call after the lock expired.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.kv.SetNX(ctx, full, token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) {
		_, _ = l.kv.DelIfEquals(ctx, full, token)
	}, nil
}
