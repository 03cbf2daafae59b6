package main

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/marcodamonte/concurrency/lazy-cache/cache"
	"github.com/marcodamonte/concurrency/lazy-cache/harness"
)

func TestSelectVariants(t *testing.T) {
	all, err := selectVariants("all")
	if err != nil {
		t.Fatalf("selectVariants(all): %v", err)
	}
	for _, v := range all {
		if v == cache.Racy {
			t.Error("all must not include the racy variant")
		}
	}
	if len(all) != len(cache.Variants)-1 {
		t.Errorf("all = %v", all)
	}

	one, err := selectVariants("Coalesced")
	if err != nil || len(one) != 1 || one[0] != cache.Coalesced {
		t.Errorf("selectVariants(Coalesced) = %v, %v", one, err)
	}

	if _, err := selectVariants("lru"); err == nil {
		t.Error("selectVariants(lru) succeeded")
	}
}

// TestMetricsServer runs a small harness, scrapes /metrics and /health,
// then shuts the server down.
func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := zerolog.Nop()

	h, err := harness.New(harness.Config{Logger: &logger, Registerer: reg})
	if err != nil {
		t.Fatalf("harness.New: %v", err)
	}
	if _, err := h.Run(4, 20); err != nil {
		t.Fatalf("Run: %v", err)
	}

	srv := newMetricsServer("127.0.0.1:0", reg, logger)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + srv.Addr()

	body := get(t, client, base+"/metrics")
	for _, want := range []string{
		`lazycache_gets_total{variant="locked"} 64`,
		`lazycache_flushes_total{variant="locked"} 16`,
		`lazycache_runs_total{outcome="success",variant="locked"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	if got := get(t, client, base+"/health"); got != "OK" {
		t.Errorf("/health = %q; want OK", got)
	}

	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(b)
}
