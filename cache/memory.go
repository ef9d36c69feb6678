package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryKVStore is a process-local KVStore used when Redis is disabled.
// Locks and rate limits then only hold within one instance.
type MemoryKVStore struct {
	mu        sync.Mutex
	now       func() time.Time
	data      map[string]memItem
	lastSweep time.Time
}

// sweepInterval bounds how often writes scan for expired keys that are
// never read again, e.g. rate-limit counters of one-off clients.
const sweepInterval = time.Minute

type memItem struct {
	value   string
	expires time.Time // zero = no ttl
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{now: time.Now, data: make(map[string]memItem)}
}

// lookup must be called with mu held.
func (m *MemoryKVStore) lookup(key string) (memItem, bool) {
	item, ok := m.data[key]
	if !ok {
		return memItem{}, false
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.data, key)
		return memItem{}, false
	}
	return item, true
}

// sweep must be called with mu held.
func (m *MemoryKVStore) sweep() {
	now := m.now()
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for k, item := range m.data {
		if !item.expires.IsZero() && !now.Before(item.expires) {
			delete(m.data, k)
		}
	}
}

func (m *MemoryKVStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryKVStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(key)
	if !ok {
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (m *MemoryKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()

	m.data[key] = memItem{value: value, expires: m.expiry(ttl)}
	return nil
}

func (m *MemoryKVStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.data[key] = memItem{value: value, expires: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryKVStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryKVStore) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(key)
	if !ok || item.value != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *MemoryKVStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()

	item, ok := m.lookup(key)
	if !ok {
		item = memItem{value: "0", expires: m.expiry(window)}
	}
	n, _ := strconv.ParseInt(item.value, 10, 64)
	n++
	item.value = strconv.FormatInt(n, 10)
	m.data[key] = item

	return n, item.expires.Sub(m.now()), nil
}
