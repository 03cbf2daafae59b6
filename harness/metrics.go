package harness

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
)

// Metrics holds the Prometheus metrics of a harness. Every series carries a
// "variant" label so a sweep over variants can share one registry.
type Metrics struct {
	// Cache traffic
	Gets      *prometheus.CounterVec
	GetErrors *prometheus.CounterVec
	Flushes   *prometheus.CounterVec
	Loads     *prometheus.CounterVec

	// Harness
	ClientFailures   *prometheus.CounterVec
	WorkersRemaining *prometheus.GaugeVec
	Runs             *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
}

// NewMetrics registers the harness metrics on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	variant := []string{"variant"}

	return &Metrics{
		Gets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gets_total",
			Help:      "Total number of cache Get calls",
		}, variant),
		GetErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "get_errors_total",
			Help:      "Total number of cache Get calls that returned an error",
		}, variant),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Total number of cache Flush calls",
		}, variant),
		Loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Total number of times the expensive value was computed",
		}, variant),

		ClientFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_failures_total",
			Help:      "Total number of clients whose run failed",
		}, variant),
		WorkersRemaining: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_remaining",
			Help:      "Number of workers of the current run that have not finished",
		}, variant),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total harness runs by outcome",
		}, []string{"variant", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a harness run",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, variant),
	}
}

// RecordRun records the outcome of one harness run.
func (m *Metrics) RecordRun(variant string, ok bool, duration time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Runs.WithLabelValues(variant, outcome).Inc()
	m.RunDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// countLoads wraps load so every call is counted.
func (m *Metrics) countLoads(variant string, load cache.Loader) cache.Loader {
	loads := m.Loads.WithLabelValues(variant)
	return func() (int, error) {
		loads.Inc()
		return load()
	}
}

// instrument wraps c so every Get and Flush is counted.
func (m *Metrics) instrument(variant string, c cache.Cache) cache.Cache {
	return &instrumentedCache{
		next:      c,
		gets:      m.Gets.WithLabelValues(variant),
		getErrors: m.GetErrors.WithLabelValues(variant),
		flushes:   m.Flushes.WithLabelValues(variant),
	}
}

type instrumentedCache struct {
	next      cache.Cache
	gets      prometheus.Counter
	getErrors prometheus.Counter
	flushes   prometheus.Counter
}

// Get counts the call, and its error if any, then delegates.
func (c *instrumentedCache) Get() (int, error) {
	c.gets.Inc()
	v, err := c.next.Get()
	if err != nil {
		c.getErrors.Inc()
	}
	return v, err
}

// Flush counts the call, then delegates.
func (c *instrumentedCache) Flush() {
	c.flushes.Inc()
	c.next.Flush()
}
