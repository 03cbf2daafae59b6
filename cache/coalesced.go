package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

const flightKey = "value"

// CoalescedCache keeps the lock out of the load path: the mutex only guards
// the stored value, and concurrent misses are collapsed into one loader call
// by a singleflight.Group. Every caller waiting on that flight receives the
// same result.
//
// A Flush that lands while a load is in flight bumps gen and forgets the
// flight. Callers already waiting on it still receive its result, but it is
// not stored, and callers arriving after the Flush start a fresh flight, so a
// Flush is never undone by a load that started before it.
type CoalescedCache struct {
	load  Loader
	group singleflight.Group

	mu      sync.Mutex
	present bool
	value   int
	gen     uint64
}

// NewCoalesced returns an empty cache that loads with load on demand.
func NewCoalesced(load Loader) *CoalescedCache {
	return &CoalescedCache{load: load}
}

// Get returns the stored value, or joins (or starts) the single in-flight load.
func (c *CoalescedCache) Get() (int, error) {
	c.mu.Lock()
	if c.present {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	res, err, _ := c.group.Do(flightKey, func() (any, error) {
		return c.load()
	})
	if err != nil {
		return 0, err
	}
	v := res.(int)

	c.mu.Lock()
	if c.gen == gen {
		c.value = v
		c.present = true
	}
	c.mu.Unlock()
	return v, nil
}

// Flush discards the value and detaches any in-flight load from the cache.
func (c *CoalescedCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = false
	c.gen++
	c.group.Forget(flightKey)
}
