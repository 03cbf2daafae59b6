// Package harness drives many concurrent clients against one shared cache
// and counts the ones that fail.
//
// A run fans out one goroutine per client, holds them at a start latch,
// lets them loose on the shared cache, and fans back in on a completion
// latch before printing a summary:
//
//	h, _ := harness.New(harness.Config{Variant: cache.Locked})
//	res, _ := h.Run(100, 1000)
//	res.OK() // true when no client failed
//
// A failing client never stops the others: errors and panics are caught at
// the worker boundary, counted atomically and recorded.
package harness

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
	"github.com/marcodamonte/concurrency/lazy-cache/latch"
)

var banner = strings.Repeat("*", 44)

// Harness prepares and runs clients concurrently against a fresh cache.
// A Harness may be reused; each Run builds its own cache.
type Harness struct {
	cfg      Config
	log      zerolog.Logger
	metrics  *Metrics
	gatherer prometheus.Gatherer
}

// New validates cfg and registers the harness metrics.
func New(cfg Config) (*Harness, error) {
	cfg = cfg.withDefaults()

	variant, err := cache.ParseVariant(string(cfg.Variant))
	if err != nil {
		return nil, err
	}
	cfg.Variant = variant

	h := &Harness{cfg: cfg, log: *cfg.Logger}

	if cfg.Registerer == nil {
		reg := prometheus.NewRegistry()
		cfg.Registerer = reg
		h.gatherer = reg
	} else if g, ok := cfg.Registerer.(prometheus.Gatherer); ok {
		h.gatherer = g
	}
	h.metrics = cfg.Metrics
	if h.metrics == nil {
		h.metrics = NewMetrics(cfg.Registerer, cfg.Namespace)
	}
	h.cfg = cfg

	return h, nil
}

// Metrics returns the harness metrics.
func (h *Harness) Metrics() *Metrics { return h.metrics }

// Gatherer returns the registry the metrics were registered on, or nil when
// the configured Registerer cannot be gathered from.
func (h *Harness) Gatherer() prometheus.Gatherer { return h.gatherer }

// Variant returns the cache variant this harness runs.
func (h *Harness) Variant() cache.Variant { return h.cfg.Variant }

// Result summarizes one run.
type Result struct {
	RunID      string
	Variant    cache.Variant
	Threads    int
	Iterations int
	Completed  int64 // workers that exited, successfully or not
	Failures   int64
	Records    []Failure // ordered by Failure.Number
	Elapsed    time.Duration
}

// OK reports whether no client failed.
func (r Result) OK() bool { return r.Failures == 0 }

// Run starts threads clients, each performing iterations operations against
// one shared cache, and blocks until every one of them has exited. Logical
// failures are reported in the Result; the error is only for arguments Run
// cannot honour.
func (h *Harness) Run(threads, iterations int) (Result, error) {
	if threads < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidThreads, threads)
	}
	if iterations < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}

	variant := string(h.cfg.Variant)
	shared, err := cache.New(h.cfg.Variant, cache.Config{
		Loader: recoverLoads(h.metrics.countLoads(variant, h.cfg.Loader)),
		TTL:    h.cfg.TTL,
	})
	if err != nil {
		return Result{}, err
	}
	if closer, ok := shared.(io.Closer); ok {
		defer closer.Close()
	}

	r := &run{
		id:         uuid.NewString(),
		variant:    variant,
		metrics:    h.metrics,
		cache:      h.metrics.instrument(variant, shared),
		iterations: iterations,
		rendezvous: h.cfg.Rendezvous,
		ready:      latch.New(threads),
		finished:   latch.New(threads),
	}
	r.log = h.log.With().Str("run_id", r.id).Str("variant", variant).Logger()

	start := time.Now()
	h.metrics.WorkersRemaining.WithLabelValues(variant).Set(float64(threads))

	r.log.Info().Int("threads", threads).Int("iterations", iterations).Msg("Preparing threads...")
	for i := 0; i < threads; i++ {
		go r.worker(i)

		if !r.rendezvous {
			// The launcher, not the worker, counts down: the latch tracks
			// spawns rather than arrivals.
			r.ready.CountDown()
		}
	}

	r.finished.Await()

	res := Result{
		RunID:      r.id,
		Variant:    h.cfg.Variant,
		Threads:    threads,
		Iterations: iterations,
		Completed:  r.completed.Load(),
		Failures:   r.failures.Load(),
		Records:    r.sortedRecords(),
		Elapsed:    time.Since(start),
	}
	h.metrics.RecordRun(variant, res.OK(), res.Elapsed)

	if res.Failures > 0 {
		r.log.Error().Msg(banner)
		r.log.Error().Int64("failures", res.Failures).Msgf("FAILURES: %d", res.Failures)
		r.log.Error().Msg(banner)
	} else {
		r.log.Info().Dur("elapsed", res.Elapsed).Msg("Completed with no failures.")
	}

	return res, nil
}

// run is the state shared by the workers of one Run.
type run struct {
	id         string
	variant    string
	log        zerolog.Logger
	metrics    *Metrics
	cache      cache.Cache
	iterations int
	rendezvous bool

	ready    *latch.Latch // start gate
	finished *latch.Latch // completion gate

	completed atomic.Int64
	failures  atomic.Int64

	mu      sync.Mutex // guards records
	records []Failure
}

// worker is the goroutine body for one client.
func (r *run) worker(thread int) {
	name := fmt.Sprintf("Thread %d", thread)
	log := r.log.With().Int("thread", thread).Logger()

	// Deferred calls run LIFO: the recover below fires first, then this.
	defer func() {
		r.completed.Add(1)
		remaining := r.finished.CountDown()
		r.metrics.WorkersRemaining.WithLabelValues(r.variant).Set(float64(remaining))
		log.Info().Int("remaining", remaining).Msgf("%s finished, %d remaining.", name, remaining)
	}()
	defer func() {
		if p := recover(); p != nil {
			r.fail(log, thread, &PanicError{Value: p})
		}
	}()

	log.Info().Msgf("%s started running.", name)
	client := NewClient(r.cache, r.iterations, name)

	log.Info().Msgf("Holding %s", name)
	if r.rendezvous {
		r.ready.CountDown()
	}
	r.ready.Await()

	log.Info().Msgf("Running client using %s", name)
	if err := client.Run(); err != nil {
		r.fail(log, thread, err)
	}
}

func (r *run) fail(log zerolog.Logger, thread int, err error) {
	f := newFailure(thread, r.failures.Add(1), err)
	r.metrics.ClientFailures.WithLabelValues(r.variant).Inc()
	log.Warn().Err(err).Str("kind", f.Kind).Msg(f.String())

	r.mu.Lock()
	r.records = append(r.records, f)
	r.mu.Unlock()
}

func (r *run) sortedRecords() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := slices.Clone(r.records)
	slices.SortFunc(out, func(a, b Failure) int {
		return int(a.Number - b.Number)
	})
	return out
}
