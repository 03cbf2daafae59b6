package harness

import (
	"fmt"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
)

// Client exercises the cache API: it counts down from a starting value and
// flushes on every multiple of five, reading the value otherwise.
type Client struct {
	cache         cache.Cache
	startingCount int
	name          string
}

// NewClient returns a client named name that performs startingCount
// operations against c.
func NewClient(c cache.Cache, startingCount int, name string) *Client {
	return &Client{cache: c, startingCount: startingCount, name: name}
}

// Name returns the label the client was created with.
func (c *Client) Name() string { return c.name }

// Run performs startingCount operations against the shared cache. The first
// Get error stops the loop and is returned.
func (c *Client) Run() error {
	for count := c.startingCount; count > 0; count-- {
		if count%5 == 0 {
			c.cache.Flush()
			continue
		}
		if _, err := c.cache.Get(); err != nil {
			return fmt.Errorf("%s: get at count %d: %w", c.name, count, err)
		}
	}
	return nil
}
