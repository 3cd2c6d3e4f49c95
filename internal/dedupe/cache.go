package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type item[V any] struct {
	value V
	ts    time.Time
}

// Cache keeps a bounded set of recently stored values. Entries expire after
// ttl; once capacity is exceeded the oldest insertions are evicted first.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key while it is inside the ttl window.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok || c.now().Sub(it.ts) > c.ttl {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Put stores value under key, refreshing its timestamp.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = item[V]{value: value, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len reports how many live keys are held.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a newer Put for the same key leaves a stale order entry behind
		if it, ok := c.items[oldest.key]; ok && it.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}

// Seen tracks keys without values, e.g. event IDs already handled.
type Seen struct {
	c *Cache[struct{}]
}

// NewSeen creates a key set with the provided capacity and ttl.
func NewSeen(capacity int, ttl time.Duration) *Seen {
	return &Seen{c: NewCache[struct{}](capacity, ttl)}
}

// IsSeen returns true when the key has already been observed inside the ttl window.
// It does not mark the key as seen; use MarkSeen() to record a key.
func (s *Seen) IsSeen(key string) bool {
	_, ok := s.c.Get(key)
	return ok
}

// MarkSeen records that a key has been processed.
func (s *Seen) MarkSeen(key string) {
	s.c.Put(key, struct{}{})
}
