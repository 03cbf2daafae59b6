package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// metricsServer exposes the harness registry, a health probe and the pprof
// handlers over HTTP.
type metricsServer struct {
	addr     string
	bound    string
	server   *http.Server
	log      zerolog.Logger
	serveErr chan error
}

func newMetricsServer(addr string, g prometheus.Gatherer, logger zerolog.Logger) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &metricsServer{
		addr:     addr,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log:      logger,
		serveErr: make(chan error, 1),
	}
}

// Start binds the address and serves in the background. Binding happens
// here so a bad address is reported before the run starts.
func (s *metricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.bound = ln.Addr().String()
	s.log.Info().Str("addr", s.bound).Msg("metrics server listening")

	go func() {
		s.serveErr <- s.server.Serve(ln)
	}()
	return nil
}

// Addr returns the address the server is bound to, once started.
func (s *metricsServer) Addr() string { return s.bound }

// Shutdown stops accepting connections and waits up to timeout for
// in-flight scrapes to finish.
func (s *metricsServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	// ErrServerClosed is the expected result of Shutdown, not a failure.
	if err := <-s.serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
