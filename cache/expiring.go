package cache

import (
	"sync"
	"time"

	store "github.com/akyoto/cache"
)

const storeKey = "value"

// ExpiringCache is the compute-if-absent pattern over an expiring store: the
// value is loaded on demand under a mutex and then kept for at most ttl, or
// until Flush, whichever comes first.
//
// The store runs a cleanup goroutine; call Close when done with the cache.
type ExpiringCache struct {
	load Loader
	ttl  time.Duration

	mu    sync.Mutex
	store *store.Cache
}

// NewExpiring returns an empty cache whose loaded value lives at most ttl.
func NewExpiring(load Loader, ttl time.Duration) *ExpiringCache {
	return &ExpiringCache{
		load:  load,
		ttl:   ttl,
		store: store.New(ttl),
	}
}

// Get returns the stored value, loading and storing it for ttl when absent.
func (c *ExpiringCache) Get() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.store.Get(storeKey); found {
		return v.(int), nil
	}

	v, err := c.load()
	if err != nil {
		return 0, err
	}
	c.store.Set(storeKey, v, c.ttl)
	return v, nil
}

// Flush removes the value from the store.
func (c *ExpiringCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(storeKey)
}

// Close stops the store's cleanup goroutine.
func (c *ExpiringCache) Close() error {
	c.store.Close()
	return nil
}
