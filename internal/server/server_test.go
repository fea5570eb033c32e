package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/menulive/internal/api/handlers"
	"github.com/onnwee/menulive/internal/config"
)

func menuAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/categories-menu":
			_, _ = io.WriteString(w, `[{"id":1,"name":"Antipasti","productCount":0}]`)
		case "/api/menu/last-update":
			_, _ = io.WriteString(w, `{"timestamp":1700000000}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		APIBaseURL:          apiURL,
		DefaultLang:         "it",
		HTTPTimeout:         2 * time.Second,
		PollInterval:        time.Hour,
		CacheTTL:            30 * time.Second,
		CacheBackend:        "memory",
		BreakerFailures:     5,
		BreakerCooldown:     time.Second,
		ListenAddr:          "127.0.0.1:0",
		RateLimitPerIP:      5,
		RateLimitPerIPBurst: 10,
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	s, err := New(testConfig(menuAPI(t).URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health handlers.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.TriggerMode != "poll" {
		t.Errorf("trigger mode = %q, want poll without a push URL", health.TriggerMode)
	}
	if health.ActiveView != "categories:it" {
		t.Errorf("active view = %q", health.ActiveView)
	}

	resp, err = http.Get("http://" + s.Addr().String() + "/menu")
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Errorf("GET /menu: status %d, %d bytes", resp.StatusCode, len(body))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := testConfig(menuAPI(t).URL)
	cfg.ListenAddr = "256.0.0.1:bad"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}
