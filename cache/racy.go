package cache

// RacyCache is lazy initialization WITHOUT synchronization.
//
// Get reads `present`, decides to load, then writes `value` and `present` in
// separate steps. Two goroutines can both see present == false and both
// load; a Flush can land between the check and the return; and without a
// happens-before edge a reader may see present == true before the store to
// value is visible to it.
//
// It is correct from a single goroutine only. Run it concurrently with -race
// to have the detector flag every access:
//
//	go run -race . -variant racy
type RacyCache struct {
	load    Loader
	present bool
	value   int
}

// NewRacy returns an empty cache that loads with load on first Get.
func NewRacy(load Loader) *RacyCache {
	return &RacyCache{load: load}
}

// Get loads the value if absent. Not safe for concurrent use.
func (c *RacyCache) Get() (int, error) {
	if !c.present { // CHECK
		// ← another goroutine can run here and also pass the check
		v, err := c.load()
		if err != nil {
			return 0, err
		}
		c.value = v // ACT
		c.present = true
	}
	return c.value, nil
}

// Flush marks the value absent, without any synchronization.
func (c *RacyCache) Flush() {
	c.present = false // DATA RACE with Get when shared
}
