package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestNewProviders_ExportsToPrometheus(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p, err := NewProviders(ProviderConfig{ServiceVersion: "test", Registerer: reg})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordMatch(ctx, "lights.on")
	m.RecordMatch(ctx, "lights.on")
	m.RecordTrieSize(ctx, 12, 3)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}

	out := string(body)
	for _, want := range []string{`command_id="lights.on"`, `service_name="voicetrie"`, "voicetrie"} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestProviders_ShutdownIsClean(t *testing.T) {
	t.Parallel()
	p, err := NewProviders(ProviderConfig{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
