package escqrs

import (
	"container/list"
	"sync"
)

// StateCache is the contract both the LRU cache and its null-object
// variant satisfy.
type StateCache interface {
	// FetchAndMerge fetches the current value for key (or an empty one),
	// invokes mergeFn to source+recompute, and atomically retains
	// whichever of current/proposed carries the higher event id.
	FetchAndMerge(key CacheKey, mergeFn func(current CacheValue) (CacheValue, error)) (CacheValue, error)
}

// lruEntry is the value stored per key, plus its position in the
// recency list for O(1) eviction.
type lruEntry struct {
	value   CacheValue
	element *list.Element
}

// LRUStateCache is a synchronized ordered map of configurable capacity.
// On insert, if size exceeds capacity, the least-recently-accessed entry
// is evicted. "Accessed" means any FetchAndMerge touching the key.
type LRUStateCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[CacheKey]*lruEntry
	order    *list.List // front = most recently used
}

// NewLRUStateCache builds a cache holding at most capacity entries.
// capacity <= 0 means unbounded.
func NewLRUStateCache(capacity int) *LRUStateCache {
	return &LRUStateCache{
		capacity: capacity,
		entries:  make(map[CacheKey]*lruEntry),
		order:    list.New(),
	}
}

// FetchAndMerge implements the contract described in StateCache, with a
// decimal-integer comparison on CacheValue.LatestEventID.
func (c *LRUStateCache) FetchAndMerge(key CacheKey, mergeFn func(current CacheValue) (CacheValue, error)) (CacheValue, error) {
	c.mu.Lock()
	current, ok := c.entries[key]
	var currentValue CacheValue
	if ok {
		c.order.MoveToFront(current.element)
		currentValue = current.value
	} else {
		currentValue = emptyCacheValue()
	}
	c.mu.Unlock()

	proposed, err := mergeFn(currentValue)
	if err != nil {
		return CacheValue{}, err
	}

	if proposed.LatestEventID == "" {
		return proposed, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[key]
	if !ok || eventIDLess(existing.value.LatestEventID, proposed.LatestEventID) {
		retained := proposed
		if ok {
			existing.value = retained
			c.order.MoveToFront(existing.element)
		} else {
			element := c.order.PushFront(key)
			c.entries[key] = &lruEntry{value: retained, element: element}
			c.evictIfOverCapacity()
		}
		return retained, nil
	}
	c.order.MoveToFront(existing.element)
	return existing.value, nil
}

func (c *LRUStateCache) evictIfOverCapacity() {
	if c.capacity <= 0 {
		return
	}
	for len(c.entries) > c.capacity {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(CacheKey))
	}
}

// eventIDLess compares decimal-integer event ids as numbers, not
// lexically, matching the store's monotonically increasing ids.
func eventIDLess(a, b string) bool {
	if a == "" {
		return true
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// NullStateCache never stores: every FetchAndMerge starts from a fresh
// empty value. Used where caching is undesired (e.g. tests).
type NullStateCache struct{}

func (NullStateCache) FetchAndMerge(_ CacheKey, mergeFn func(current CacheValue) (CacheValue, error)) (CacheValue, error) {
	return mergeFn(emptyCacheValue())
}
