package cache_test

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counter is a Loader that records how many times it ran.
type counter struct {
	calls atomic.Int64
}

func (c *counter) load() (int, error) {
	c.calls.Add(1)
	return cache.ExpensiveValue, nil
}

// newCache builds v and closes it when the test ends.
func newCache(t *testing.T, v cache.Variant, cfg cache.Config) cache.Cache {
	t.Helper()
	c, err := cache.New(v, cfg)
	if err != nil {
		t.Fatalf("New(%s): %v", v, err)
	}
	if closer, ok := c.(io.Closer); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}
	return c
}

func raceFree() []cache.Variant {
	var out []cache.Variant
	for _, v := range cache.Variants {
		if v.RaceFree() {
			out = append(out, v)
		}
	}
	return out
}

// ── Single-goroutine behaviour ───────────────────────────────────────────────

// TestFlushThenGet checks cold-start correctness: a Flush on an idle cache
// followed by a Get returns the expensive value.
func TestFlushThenGet(t *testing.T) {
	t.Parallel()

	for _, v := range cache.Variants {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			c := newCache(t, v, cache.Config{})
			c.Flush()
			got, err := c.Get()
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != cache.ExpensiveValue {
				t.Errorf("Get() = %d; want %d", got, cache.ExpensiveValue)
			}
		})
	}
}

// TestRepeatedFlushIsIdempotent flushes several times in a row: the cache
// stays absent, and exactly one reload happens on the next Get.
func TestRepeatedFlushIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, v := range cache.Variants {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			var loads counter
			c := newCache(t, v, cache.Config{Loader: loads.load})

			if _, err := c.Get(); err != nil {
				t.Fatalf("Get: %v", err)
			}
			for i := 0; i < 3; i++ {
				c.Flush()
			}
			got, err := c.Get()
			if err != nil {
				t.Fatalf("Get after flush: %v", err)
			}
			if got != cache.ExpensiveValue {
				t.Errorf("Get() = %d; want %d", got, cache.ExpensiveValue)
			}

			want := int64(2)
			if v == cache.Eager {
				want = 1
			}
			if n := loads.calls.Load(); n != want {
				t.Errorf("loader ran %d times; want %d", n, want)
			}
		})
	}
}

// TestGetReusesValue checks that a loaded value is served from the cache.
func TestGetReusesValue(t *testing.T) {
	t.Parallel()

	for _, v := range cache.Variants {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			var loads counter
			c := newCache(t, v, cache.Config{Loader: loads.load})
			for i := 0; i < 100; i++ {
				if _, err := c.Get(); err != nil {
					t.Fatalf("Get: %v", err)
				}
			}
			if n := loads.calls.Load(); n != 1 {
				t.Errorf("loader ran %d times; want 1", n)
			}
		})
	}
}

// TestLoaderError checks that a failed load is reported and not cached: the
// lazy variants retry on the next Get, the eager one keeps its error.
func TestLoaderError(t *testing.T) {
	t.Parallel()

	errLoad := errors.New("backend unavailable")

	for _, v := range cache.Variants {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			load := func() (int, error) {
				if calls.Add(1) == 1 {
					return 0, errLoad
				}
				return cache.ExpensiveValue, nil
			}
			c := newCache(t, v, cache.Config{Loader: load})

			if _, err := c.Get(); !errors.Is(err, errLoad) {
				t.Fatalf("first Get error = %v; want %v", err, errLoad)
			}

			got, err := c.Get()
			if v == cache.Eager {
				if !errors.Is(err, errLoad) {
					t.Errorf("eager Get error = %v; want %v", err, errLoad)
				}
				return
			}
			if err != nil {
				t.Fatalf("second Get: %v", err)
			}
			if got != cache.ExpensiveValue {
				t.Errorf("Get() = %d; want %d", got, cache.ExpensiveValue)
			}
		})
	}
}

// ── Concurrency ──────────────────────────────────────────────────────────────

// TestConcurrentGetFlush hammers each race-free variant with interleaved Get
// and Flush calls. Every Get must return the expensive value: never a zero,
// never a partially published one. Run with -race.
func TestConcurrentGetFlush(t *testing.T) {
	t.Parallel()

	const goroutines = 64
	const ops = 1000

	for _, v := range raceFree() {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			c := newCache(t, v, cache.Config{})

			var (
				wg  sync.WaitGroup
				bad atomic.Int64
			)
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < ops; i++ {
						if (g+i)%5 == 0 {
							c.Flush()
							continue
						}
						got, err := c.Get()
						if err != nil || got != cache.ExpensiveValue {
							bad.Add(1)
						}
					}
				}(g)
			}
			wg.Wait()

			if n := bad.Load(); n != 0 {
				t.Errorf("%d Get calls returned a wrong value or error", n)
			}
		})
	}
}

// TestLockedLoadsOnceUnderContention starts many goroutines against a cold
// Locked cache with a slow loader: the lock spans the load, so it runs once.
func TestLockedLoadsOnceUnderContention(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	slow := cache.SlowLoader(5 * time.Millisecond)
	c := cache.NewLocked(func() (int, error) {
		calls.Add(1)
		return slow()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get()
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("loader ran %d times; want 1", n)
	}
}

// TestCoalescedSharesInFlightLoad parks the loader until every caller has
// joined the flight, then releases it: one load serves all of them.
func TestCoalescedSharesInFlightLoad(t *testing.T) {
	t.Parallel()

	const callers = 20

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	c := cache.NewCoalesced(func() (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return cache.ExpensiveValue, nil
	})

	var (
		wg  sync.WaitGroup
		bad atomic.Int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := c.Get(); err != nil || got != cache.ExpensiveValue {
				bad.Add(1)
			}
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond) // let the other callers join the flight
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("loader ran %d times; want 1", n)
	}
	if n := bad.Load(); n != 0 {
		t.Errorf("%d callers got a wrong value", n)
	}
}

// TestCoalescedFlushDuringLoad checks that a load which started before a
// Flush does not repopulate the cache after it, and that a caller arriving
// after the Flush does not join the stale flight.
func TestCoalescedFlushDuringLoad(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c := cache.NewCoalesced(func() (int, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return cache.ExpensiveValue, nil
	})

	stale := make(chan int)
	go func() {
		v, _ := c.Get()
		stale <- v
	}()

	<-started
	c.Flush()

	fresh := make(chan int)
	go func() {
		v, _ := c.Get()
		fresh <- v
	}()
	select {
	case got := <-fresh:
		if got != cache.ExpensiveValue {
			t.Errorf("post-Flush Get() = %d; want %d", got, cache.ExpensiveValue)
		}
	case <-time.After(time.Second):
		close(release)
		<-stale
		<-fresh
		t.Fatal("Get after Flush waited on the load that started before it")
	}

	close(release)
	if got := <-stale; got != cache.ExpensiveValue {
		t.Errorf("in-flight Get() = %d; want %d", got, cache.ExpensiveValue)
	}

	if _, err := c.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("loader ran %d times; want 2 (stale load must not be stored)", n)
	}
}

// TestExpiringDropsValueAfterTTL lets the stored value expire and checks the
// next Get reloads it.
func TestExpiringDropsValueAfterTTL(t *testing.T) {
	t.Parallel()

	var loads counter
	c := cache.NewExpiring(loads.load, 20*time.Millisecond)
	defer c.Close()

	if _, err := c.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	got, err := c.Get()
	if err != nil {
		t.Fatalf("Get after TTL: %v", err)
	}
	if got != cache.ExpensiveValue {
		t.Errorf("Get() = %d; want %d", got, cache.ExpensiveValue)
	}
	if n := loads.calls.Load(); n != 2 {
		t.Errorf("loader ran %d times; want 2", n)
	}
}

// ── Construction ─────────────────────────────────────────────────────────────

func TestParseVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    cache.Variant
		wantErr bool
	}{
		{in: "locked", want: cache.Locked},
		{in: "  Snapshot ", want: cache.Snapshot},
		{in: "EXPIRING", want: cache.Expiring},
		{in: "lru", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cache.ParseVariant(tt.in)
		if tt.wantErr {
			if !errors.Is(err, cache.ErrUnknownVariant) {
				t.Errorf("ParseVariant(%q) error = %v; want ErrUnknownVariant", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseVariant(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewUnknownVariant(t *testing.T) {
	t.Parallel()

	if _, err := cache.New("lru", cache.Config{}); !errors.Is(err, cache.ErrUnknownVariant) {
		t.Errorf("New(lru) error = %v; want ErrUnknownVariant", err)
	}
}

func TestSlowLoaderTakesTime(t *testing.T) {
	t.Parallel()

	const d = 10 * time.Millisecond
	start := time.Now()
	v, err := cache.SlowLoader(d)()
	if err != nil || v != cache.ExpensiveValue {
		t.Fatalf("SlowLoader() = %d, %v", v, err)
	}
	if elapsed := time.Since(start); elapsed < d {
		t.Errorf("SlowLoader returned after %s; want at least %s", elapsed, d)
	}
}
