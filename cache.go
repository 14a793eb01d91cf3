package gerbang

import (
	"container/list"
	"sync"
	"time"
)

// Cache stores responses by canonical key. Implementations must be safe for
// concurrent use. Get must treat expired entries as absent, Set overwrites
// any existing entry and resets its TTL clock, and both hand responses
// around by value so callers never share a buffer with the store.
type Cache interface {
	Get(key string) (Response, bool)
	Set(key string, value Response, ttl time.Duration)
	Invalidate(key string)
}

// MemoryCache is a fixed-capacity in-memory Cache with TTL expiry and
// least-recently-used eviction. Expired entries are logically absent even
// while still resident (lazy eviction) and are reclaimed first under
// capacity pressure.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key      string
	value    Response
	storedAt time.Time
	ttl      time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !now.Before(e.storedAt.Add(e.ttl))
}

// NewMemoryCache creates a MemoryCache holding at most capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns a copy of the entry for key if present and unexpired. An
// expired entry is removed opportunistically and reported as a miss.
func (c *MemoryCache) Get(key string) (Response, bool) {
	if key == "" {
		return Response{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		return Response{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.remove(elem)
		return Response{}, false
	}

	c.order.MoveToFront(elem)
	return entry.value.clone(), true
}

// Set stores a copy of value under key, overwriting any existing entry and
// resetting its TTL clock. Inserting past capacity evicts the
// least-recently-used entry, preferring expired ones.
func (c *MemoryCache) Set(key string, value Response, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*cacheEntry)
		entry.value = value.clone()
		entry.storedAt = now
		entry.ttl = ttl
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.capacity {
		c.evict(now)
	}

	entry := &cacheEntry{
		key:      key,
		value:    value.clone(),
		storedAt: now,
		ttl:      ttl,
	}
	c.entries[key] = c.order.PushFront(entry)
}

// Invalidate removes the entry for key, if any.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.remove(elem)
	}
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of resident entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict drops one entry: the least-recently-used expired entry if there is
// one, otherwise the least-recently-used entry outright. The cache never
// grows past capacity.
func (c *MemoryCache) evict(now time.Time) {
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*cacheEntry).expired(now) {
			c.remove(elem)
			return
		}
	}
	if elem := c.order.Back(); elem != nil {
		c.remove(elem)
	}
}

func (c *MemoryCache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}
