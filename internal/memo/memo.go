// Package memo caches results of pure functions keyed by the SHA-256 of their
// input bytes.
package memo

import (
	"crypto/sha256"
	"sync"
)

// DefaultSize is the entry limit used when New is given a non-positive size.
const DefaultSize = 128

type entry[V any] struct {
	val V
	err error
}

// Cache memoizes values, and errors, by input hash. The oldest entry is evicted
// once the limit is reached. Safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	max     int
	entries map[[sha256.Size]byte]entry[V]
	order   [][sha256.Size]byte
}

// New creates a cache holding at most size entries.
func New[V any](size int) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache[V]{
		max:     size,
		entries: make(map[[sha256.Size]byte]entry[V]),
	}
}

// Do returns the cached result for input, calling fn on a miss. Errors are
// cached too. fn runs outside the lock, so two concurrent misses on the same
// input may both compute it.
func (c *Cache[V]) Do(input []byte, fn func() (V, error)) (V, error) {
	key := sha256.Sum256(input)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.val, e.err
	}
	c.mu.Unlock()

	val, err := fn()
	c.store(key, entry[V]{val: val, err: err})
	return val, err
}

// Get returns a cached successful value for input.
func (c *Cache[V]) Get(input []byte) (V, bool) {
	key := sha256.Sum256(input)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.err != nil {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Put caches val for input.
func (c *Cache[V]) Put(input []byte, val V) {
	c.store(sha256.Sum256(input), entry[V]{val: val})
}

func (c *Cache[V]) store(key [sha256.Size]byte, e entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = e
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
