package cache

import (
	"context"
	"time"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	kv     KVStore
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(kv KVStore, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{kv: kv, prefix: prefix, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	n, ttl, err := r.kv.IncrWindow(ctx, r.prefix+key, r.window)
	if err != nil {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit}, err
	}

	remaining := r.limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   n <= int64(r.limit),
		Limit:     r.limit,
		Remaining: remaining,
		Reset:     ttl,
	}, nil
}
