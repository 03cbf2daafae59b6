package harness

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
)

// Config holds harness construction parameters.
type Config struct {
	// Variant selects the shared cache implementation. Defaults to
	// cache.Locked.
	Variant cache.Variant

	// Loader computes the cached value. Defaults to
	// cache.ComputeExpensiveValue.
	Loader cache.Loader

	// TTL is passed to the Expiring variant.
	TTL time.Duration

	// Rendezvous makes every worker count down the start latch itself, on
	// arrival, before waiting on it. When false (the default) the launching
	// goroutine counts down once per spawned worker, so the latch can open
	// before the last workers have even started: weaker than a true
	// "hold until all are ready".
	Rendezvous bool

	// Logger receives progress lines. If nil, the global zerolog logger is
	// used.
	Logger *zerolog.Logger

	// Metrics, when set, is used as is and nothing new is registered. Share
	// one Metrics between harnesses that report to the same registry.
	Metrics *Metrics

	// Registerer receives the harness metrics. If nil, a private registry is
	// created; fetch it with Harness.Gatherer.
	Registerer prometheus.Registerer

	// Namespace prefixes every metric name. Defaults to "lazycache".
	Namespace string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Variant == "" {
		out.Variant = cache.Locked
	}
	if out.Loader == nil {
		out.Loader = cache.ComputeExpensiveValue
	}
	if out.Logger == nil {
		out.Logger = &log.Logger
	}
	if out.Namespace == "" {
		out.Namespace = "lazycache"
	}
	return out
}

// Sentinel errors returned by Run for arguments it cannot honour.
var (
	ErrInvalidThreads    = errors.New("number of threads must not be negative")
	ErrInvalidIterations = errors.New("number of iterations must not be negative")
)
