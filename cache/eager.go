package cache

// EagerCache computes its value once, in the constructor, and never mutates
// it afterwards. Concurrent Get and Flush calls cannot race because there is
// nothing left to write: the "lazy load" bug is moot here, which is exactly
// why naive lazy versions of this type need a guard.
type EagerCache struct {
	value int
	err   error
}

// NewEager runs load immediately. A load error is kept and returned by every
// Get.
func NewEager(load Loader) *EagerCache {
	v, err := load()
	return &EagerCache{value: v, err: err}
}

// Get returns the value and error computed by NewEager.
func (c *EagerCache) Get() (int, error) {
	return c.value, c.err
}

// Flush is a no-op: the value was never lazy.
func (c *EagerCache) Flush() {}
