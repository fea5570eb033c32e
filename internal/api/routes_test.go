package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/websocket"

	"github.com/onnwee/menulive/internal/api/handlers"
	"github.com/onnwee/menulive/internal/fetch"
	"github.com/onnwee/menulive/internal/menu"
	"github.com/onnwee/menulive/internal/middleware"
	"github.com/onnwee/menulive/internal/view"
)

type testEnv struct {
	server  *httptest.Server
	apiHits *atomic.Int32
	failing *atomic.Bool
	hub     *handlers.Hub
}

// newTestEnv runs the display stack against a fake menu API.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{apiHits: &atomic.Int32{}, failing: &atomic.Bool{}}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.apiHits.Add(1)
		if env.failing.Load() {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/categories-menu":
			_, _ = io.WriteString(w, `[{"id":3,"name":"Pizze","productCount":1}]`)
		case strings.HasPrefix(r.URL.Path, "/api/products/category/3"):
			_, _ = io.WriteString(w, `{"category":{"id":3,"name":"Pizze"},"products":[
				{"id":11,"name":"Margherita","price":8.5,"available":true,"categoryId":3},
				{"id":12,"name":"Diavola","price":9,"available":false,"categoryId":3}],"totalProducts":2}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	client := fetch.New(fetch.Options{BaseURL: upstream.URL, Timeout: 2 * time.Second, BreakerFailures: 100})
	store, err := menu.NewStore(menu.APISource{Client: client}, menu.StoreConfig{TTL: 30 * time.Second})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)

	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	env.hub = handlers.NewHub()
	go env.hub.Run(ctx)

	display := view.NewController(store, renderer, env.hub, "it")
	router := NewRouter(Deps{
		Display:     display,
		Hub:         env.hub,
		RateLimiter: middleware.NewRateLimiter(0, 0, 1, 1),
		Health: handlers.HealthSources{
			Breaker:    client.BreakerState,
			Mode:       func() string { return "poll" },
			CacheStats: store.Stats,
			Clients:    env.hub.Clients,
		},
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	// Keep the raw encoding visible to the test.
	tr := &http.Transport{DisableCompression: true}
	resp, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRouter_CategoryFragmentHidesUnavailable(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/menu/categories/3?name=Pizze", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := readAll(t, resp.Body)
	if !strings.Contains(body, "Margherita") || strings.Contains(body, "Diavola") {
		t.Errorf("fragment = %s", body)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id")
	}
}

func TestRouter_CompressedAndRevalidated(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/menu/categories", map[string]string{"Accept-Encoding": "br"})
	if resp.Header.Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	if body := readAll(t, brotli.NewReader(resp.Body)); !strings.Contains(body, "Pizze") {
		t.Errorf("decoded fragment = %s", body)
	}
	tag := resp.Header.Get("ETag")
	if tag == "" {
		t.Fatal("missing ETag")
	}

	resp = env.do(t, http.MethodGet, "/menu/categories", map[string]string{"Accept-Encoding": "br", "If-None-Match": tag})
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("revalidation status = %d, want 304", resp.StatusCode)
	}
	// Served from cache: one upstream call for both requests.
	if got := env.apiHits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestRouter_RefreshRefetchesAndIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/menu", nil)

	resp := env.do(t, http.MethodPost, "/menu/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	if got := env.apiHits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2", got)
	}

	resp = env.do(t, http.MethodPost, "/menu/refresh", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second refresh status = %d, want 429", resp.StatusCode)
	}
}

func TestRouter_UpstreamFailureRendersErrorState(t *testing.T) {
	env := newTestEnv(t)
	env.failing.Store(true)

	resp := env.do(t, http.MethodGet, "/menu/categories", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Menu-Error-Kind"); got != "server" {
		t.Errorf("error kind = %q", got)
	}
	if resp.Header.Get("ETag") != "" {
		t.Error("error fragments must not be tagged")
	}
}

func TestRouter_LanguageSwitchPushedToDisplays(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/menu", nil)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/menu/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Accept-Encoding": {"br"}})
	if err != nil {
		t.Fatalf("dial through middleware chain: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	next := func() view.Fragment {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type    string        `json:"type"`
			Payload view.Fragment `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg.Payload
	}
	if f := next(); f.View != "categories:it" {
		t.Errorf("initial view = %q", f.View)
	}

	if resp := env.do(t, http.MethodPost, "/menu/lang/en", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("lang status = %d", resp.StatusCode)
	}
	if f := next(); f.View != "categories:en" || f.Lang != "en" {
		t.Errorf("pushed fragment = %+v", f)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/menu", nil)

	resp := env.do(t, http.MethodGet, "/health", nil)
	var health handlers.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Upstream != "closed" || health.TriggerMode != "poll" {
		t.Errorf("health = %+v", health)
	}
	if health.Caches["categories"].Items != 1 {
		t.Errorf("categories cache = %+v", health.Caches["categories"])
	}

	resp = env.do(t, http.MethodGet, "/metrics", nil)
	if body := readAll(t, resp.Body); !strings.Contains(body, "api_request_duration_seconds") {
		t.Error("metrics missing request duration histogram")
	}
}
