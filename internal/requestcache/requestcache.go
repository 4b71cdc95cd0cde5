// Package requestcache provides a generic keyed store for outstanding
// requests that must time out if nobody replies: pending pings, sync
// requests, trader public-key lookups. It exists separately from
// matchcache's own priority queue because these entries need no ordering,
// only a deadline — matching the original design note that ownership of a
// pending request should be a lookup key, not a live pointer a closure
// captured, so a timeout firing after the underlying state has already
// moved on is harmless: Pop simply finds nothing and the timeout callback
// finds the entry already gone.
package requestcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/anydex/anydex/pkg/util"
)

// Key identifies one outstanding request by kind and number, e.g.
// ("ping", 17) or ("sync", 4) — mirrors the original (kind, number) cache
// key scheme.
type Key struct {
	Kind   string
	Number uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.Number)
}

type entry struct {
	value any
	stop  chan struct{}
}

// Cache is a concurrency-safe keyed store of outstanding requests. Although
// the trading engine's core state is touched only from its single
// cooperative event loop (spec.md §5), timeout goroutines spawned here run
// independently and must hand their firing back to that loop through
// onTimeout rather than touching shared state directly.
type Cache struct {
	clock util.Clock

	mu      sync.Mutex
	entries map[Key]*entry
	counter uint64
}

// New creates an empty request cache using clock for scheduling timeouts
// (pass a fake clock in tests for determinism).
func New(clock util.Clock) *Cache {
	return &Cache{clock: clock, entries: make(map[Key]*entry)}
}

// NextNumber returns a fresh, monotonically increasing number for use in a
// Key; one counter is shared by all kinds.
func (c *Cache) NextNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Add registers value under key, arming onTimeout to be invoked with
// (key, value) after d unless Pop(key) is called first. Returns false
// without registering anything if key is already present.
func (c *Cache) Add(key Key, value any, d time.Duration, onTimeout func(Key, any)) bool {
	c.mu.Lock()
	if _, exists := c.entries[key]; exists {
		c.mu.Unlock()
		return false
	}
	e := &entry{value: value, stop: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	go func() {
		select {
		case <-c.clock.After(d):
			c.mu.Lock()
			current, ok := c.entries[key]
			if ok && current == e {
				delete(c.entries, key)
			}
			c.mu.Unlock()
			if ok && current == e && onTimeout != nil {
				onTimeout(key, value)
			}
		case <-e.stop:
		}
	}()
	return true
}

// Pop removes and returns the entry for key, cancelling its timeout.
// Reports whether an entry was present.
func (c *Cache) Pop(key Key) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	close(e.stop)
	return e.value, true
}

// Get returns the entry for key without removing it.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Has reports whether key is currently outstanding.
func (c *Cache) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of currently outstanding requests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear cancels and removes every outstanding request, e.g. on shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
	for _, e := range entries {
		close(e.stop)
	}
}
