package cache

import "sync/atomic"

// SnapshotCache publishes the loaded value as an immutable snapshot through
// an atomic.Pointer. Readers never block: a non-nil pointer is always a
// fully written value (Store/Load give the happens-before edge the racy
// version lacks), and nil means absent.
//
// The trade-off is duplicated work: on a miss several goroutines may run the
// loader at once. Only the first CompareAndSwap publishes; the others return
// their own (identical) result.
type SnapshotCache struct {
	load Loader
	ptr  atomic.Pointer[int]
}

// NewSnapshot returns an empty cache that loads with load on first Get.
func NewSnapshot(load Loader) *SnapshotCache {
	return &SnapshotCache{load: load}
}

// Get returns the published snapshot, loading and publishing one on a miss.
func (c *SnapshotCache) Get() (int, error) {
	if p := c.ptr.Load(); p != nil {
		return *p, nil
	}

	v, err := c.load()
	if err != nil {
		return 0, err
	}
	c.ptr.CompareAndSwap(nil, &v)
	return v, nil
}

// Flush unpublishes the snapshot.
func (c *SnapshotCache) Flush() {
	c.ptr.Store(nil)
}
