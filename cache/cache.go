// Package cache holds a single lazily computed value in several flavours,
// from an unsynchronized check-then-set to lock-free and coalesced loading.
//
// Every implementation caches exactly one int. There is no key space, no
// eviction policy and no capacity bound.
//
//	c, _ := cache.New(cache.Locked, cache.Config{})
//	v, _ := c.Get() // computes on first call
//	c.Flush()       // next Get recomputes
package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExpensiveValue is the value every default loader produces.
const ExpensiveValue = 42

// Cache is a lazily loaded single value.
type Cache interface {
	// Get returns the cached value, loading it first when absent.
	Get() (int, error)
	// Flush discards the cached value so the next Get loads it again.
	Flush()
}

// Loader computes the value a Cache holds.
type Loader func() (int, error)

// ComputeExpensiveValue is the default Loader.
func ComputeExpensiveValue() (int, error) {
	return ExpensiveValue, nil
}

// SlowLoader returns a Loader that takes d to produce ExpensiveValue, so
// loads actually overlap under contention.
func SlowLoader(d time.Duration) Loader {
	if d <= 0 {
		return ComputeExpensiveValue
	}
	return func() (int, error) {
		time.Sleep(d)
		return ExpensiveValue, nil
	}
}

// Variant names a Cache implementation.
type Variant string

const (
	Eager     Variant = "eager"     // loaded once at construction, Flush is a no-op
	Racy      Variant = "racy"      // lazy, unsynchronized; single goroutine only
	Locked    Variant = "locked"    // lazy, check-then-set under a mutex
	Snapshot  Variant = "snapshot"  // lazy, atomic.Pointer publish
	Coalesced Variant = "coalesced" // lazy, concurrent misses share one load
	Expiring  Variant = "expiring"  // lazy, mutex + TTL-bounded store
)

// Variants lists every known variant in presentation order.
var Variants = []Variant{Eager, Racy, Locked, Snapshot, Coalesced, Expiring}

// RaceFree reports whether v may be shared between goroutines.
func (v Variant) RaceFree() bool {
	return v != Racy
}

// ErrUnknownVariant is returned for a name that is not one of Variants.
var ErrUnknownVariant = errors.New("unknown cache variant")

// ParseVariant validates a variant name. Matching is case-insensitive.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Variants {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Config holds construction parameters shared by all variants.
type Config struct {
	// Loader computes the value. Defaults to ComputeExpensiveValue.
	Loader Loader

	// TTL bounds how long the Expiring variant keeps a loaded value.
	// Ignored by the other variants. Defaults to one minute.
	TTL time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Loader == nil {
		out.Loader = ComputeExpensiveValue
	}
	if out.TTL <= 0 {
		out.TTL = time.Minute
	}
	return out
}

// New builds the Cache named by v. Variants that own background resources
// (Expiring) also implement io.Closer.
func New(v Variant, cfg Config) (Cache, error) {
	cfg = cfg.withDefaults()

	switch v {
	case Eager:
		return NewEager(cfg.Loader), nil
	case Racy:
		return NewRacy(cfg.Loader), nil
	case Locked:
		return NewLocked(cfg.Loader), nil
	case Snapshot:
		return NewSnapshot(cfg.Loader), nil
	case Coalesced:
		return NewCoalesced(cfg.Loader), nil
	case Expiring:
		return NewExpiring(cfg.Loader, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
	}
}
