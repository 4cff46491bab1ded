package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryCache implements Cache with expiring in-memory counters
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]*cacheItem
	done chan struct{}
	now  func() time.Time
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		data: make(map[string]*cacheItem),
		done: make(chan struct{}),
		now:  time.Now,
	}

	go mc.cleanup()

	return mc
}

// Incr increments the counter at key
func (m *MemoryCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.live(key)
	if !ok {
		item = &cacheItem{value: []byte("0"), expiration: m.expiry(ttl)}
		m.data[key] = item
	}

	n, err := strconv.ParseInt(string(item.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	item.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Close stops the cleanup loop
func (m *MemoryCache) Close() error {
	close(m.done)
	return nil
}

// live returns the unexpired item at key. Callers hold m.mu.
func (m *MemoryCache) live(key string) (*cacheItem, bool) {
	item, ok := m.data[key]
	if !ok || item.expired(m.now()) {
		return nil, false
	}
	return item, true
}

func (m *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// cleanup periodically removes expired items
func (m *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for key, item := range m.data {
				if item.expired(now) {
					delete(m.data, key)
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}
