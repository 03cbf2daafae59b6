package cache

import "sync"

// LockedCache is the corrected lazy cache: a single mutex spans the whole
// check-then-set in Get and the clear in Flush, so no goroutine can slip in
// between a check and the write that depends on it.
type LockedCache struct {
	load Loader

	mu      sync.Mutex
	present bool
	value   int
}

// NewLocked returns an empty cache that loads with load on first Get.
func NewLocked(load Loader) *LockedCache {
	return &LockedCache{load: load}
}

// Get holds the lock while loading, so concurrent callers wait for the
// first load instead of starting their own.
func (c *LockedCache) Get() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.present { // check
		v, err := c.load()
		if err != nil {
			return 0, err
		}
		c.value = v // set, atomic with respect to other goroutines
		c.present = true
	}
	return c.value, nil
}

// Flush marks the value absent under the same lock Get holds.
func (c *LockedCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = false
}
