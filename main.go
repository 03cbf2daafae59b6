package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
	"github.com/marcodamonte/concurrency/lazy-cache/harness"
)

// Run:
//
//	go run .                               # 100 clients x 1000 ops, locked cache
//	go run . -variant all                  # every race-free variant in turn
//	go run -race . -variant racy           # watch the detector flag the lazy load
//	go run . -metrics-addr :2112 -metrics-hold 30s
func main() {
	var (
		threads     = flag.Int("threads", 100, "number of concurrent clients")
		iterations  = flag.Int("iterations", 1000, "operations per client (every 5th is a flush)")
		variantName = flag.String("variant", string(cache.Locked), "cache variant: "+variantList()+", or all")
		rendezvous  = flag.Bool("rendezvous", false, "workers count down the start latch on arrival instead of the launcher")
		loadCost    = flag.Duration("load-cost", 0, "simulated cost of computing the cached value")
		ttl         = flag.Duration("ttl", time.Minute, "lifetime of a loaded value in the expiring variant")
		metricsAddr = flag.String("metrics-addr", "", "serve /metrics, /health and /debug/pprof/ on this address")
		metricsHold = flag.Duration("metrics-hold", 0, "keep the metrics server up this long after the run")
		logFormat   = flag.String("log-format", "console", "log output: console or json")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := newLogger(*logFormat, *debug)

	variants, err := selectVariants(*variantName)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -variant")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := harness.NewMetrics(reg, "lazycache")

	if *metricsAddr != "" {
		srv := newMetricsServer(*metricsAddr, reg, logger)
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Str("addr", *metricsAddr).Msg("metrics server")
		}
		defer func() {
			hold(ctx, *metricsHold, logger)
			if err := srv.Shutdown(5 * time.Second); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	for _, v := range variants {
		if len(variants) > 1 && *logFormat == "console" {
			section(string(v))
		}

		h, err := harness.New(harness.Config{
			Variant:    v,
			Loader:     cache.SlowLoader(*loadCost),
			TTL:        *ttl,
			Rendezvous: *rendezvous,
			Logger:     &logger,
			Metrics:    metrics,
			Registerer: reg,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("harness")
		}

		// Failures are counted and reported, never turned into an exit code.
		if _, err := h.Run(*threads, *iterations); err != nil {
			logger.Fatal().Err(err).Msg("harness run")
		}
	}
}

func newLogger(format string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if format == "json" {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000000"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// selectVariants resolves the -variant flag. "all" expands to every variant
// that is safe to share between goroutines.
func selectVariants(name string) ([]cache.Variant, error) {
	if strings.EqualFold(strings.TrimSpace(name), "all") {
		var out []cache.Variant
		for _, v := range cache.Variants {
			if v.RaceFree() {
				out = append(out, v)
			}
		}
		return out, nil
	}

	v, err := cache.ParseVariant(name)
	if err != nil {
		return nil, err
	}
	return []cache.Variant{v}, nil
}

func variantList() string {
	names := make([]string, len(cache.Variants))
	for i, v := range cache.Variants {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// hold waits d, or until ctx is cancelled, so the metrics can be scraped.
func hold(ctx context.Context, d time.Duration, logger zerolog.Logger) {
	if d <= 0 {
		return
	}
	logger.Info().Dur("hold", d).Msg("holding metrics server open")
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func section(title string) {
	fmt.Printf("\n━━━ %s ━━━\n", title)
}
