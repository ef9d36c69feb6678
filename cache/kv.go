package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss means the key does not exist (or has expired).
var ErrCacheMiss = errors.New("cache miss")

// KVStore is the small slice of Redis the service needs. MemoryKVStore
// stands in when Redis is disabled.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	// DelIfEquals removes key only while it still holds value.
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	// IncrWindow increments a counter that expires window after its first hit.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKVStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisKVStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

var delIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisKVStore) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	n, err := delIfEquals.Run(ctx, r.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisKVStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return n, 0, err
		}
		return n, window, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return n, 0, err
	}
	// counter lost its expiry (crash between INCR and PEXPIRE)
	if ttl < 0 {
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return n, 0, err
		}
		ttl = window
	}
	return n, ttl, nil
}
