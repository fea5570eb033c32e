package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/menulive/internal/circuitbreaker"
)

type category struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{BaseURL: srv.URL, Timeout: 2 * time.Second, BreakerFailures: 100})
}

func TestFetchJSON_Success(t *testing.T) {
	var gotLang, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Antipasti","productCount":3},{"id":2,"name":"Primi","productCount":5}]`))
	}))
	defer srv.Close()

	got, err := FetchJSON[[]category](context.Background(), newTestClient(srv), CategoriesPath("en"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []category{{ID: 1, Name: "Antipasti", ProductCount: 3}, {ID: 2, Name: "Primi", ProductCount: 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if gotPath != "/api/categories-menu" {
		t.Errorf("path = %q", gotPath)
	}
	if gotLang != "en" {
		t.Errorf("Accept-Language = %q, want en", gotLang)
	}
}

func TestFetchJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := FetchJSON[map[string]any](context.Background(), newTestClient(srv), CategoryProductsPath(7, "it"), 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("kind = %v, want timeout (err=%v)", KindOf(err), err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout did not cancel the request promptly: %v", elapsed)
	}
}

func TestFetchJSON_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database locked"}`))
	}))
	defer srv.Close()

	_, err := FetchJSON[[]category](context.Background(), newTestClient(srv), CategoriesPath("it"), 0)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Kind != KindServer || fe.Status != http.StatusInternalServerError {
		t.Errorf("got kind=%v status=%d", fe.Kind, fe.Status)
	}
	if fe.Message != "database locked" {
		t.Errorf("message = %q", fe.Message)
	}
}

func TestFetchJSON_Parsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "name": `))
	}))
	defer srv.Close()

	_, err := FetchJSON[category](context.Background(), newTestClient(srv), "/api/x", 0)
	if KindOf(err) != KindParsing {
		t.Errorf("kind = %v, want parsing (err=%v)", KindOf(err), err)
	}
}

func TestFetchJSON_Network(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	_, err := FetchJSON[category](context.Background(), c, "/api/x", 0)
	if KindOf(err) != KindNetwork {
		t.Errorf("kind = %v, want network (err=%v)", KindOf(err), err)
	}
}

func TestFetchJSON_CallerCancelIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FetchJSON[category](ctx, newTestClient(srv), "/api/x", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindUnknown {
		t.Errorf("kind = %v, want unknown", KindOf(err))
	}
}

func TestFetchJSON_BreakerOpenReportsServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, BreakerFailures: 1, BreakerCooldown: time.Minute})
	if _, err := FetchJSON[category](context.Background(), c, "/api/x", 0); KindOf(err) != KindServer {
		t.Fatalf("first call kind = %v", KindOf(err))
	}
	_, err := FetchJSON[category](context.Background(), c, "/api/x", 0)
	if KindOf(err) != KindServer {
		t.Errorf("kind = %v, want server", KindOf(err))
	}
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen in chain, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestFetchJSON_ParsingDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		_, _ = FetchJSON[category](context.Background(), c, "/api/x", 0)
	}
	if c.BreakerState() != circuitbreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", c.BreakerState())
	}
}

func TestLastUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != LastUpdatePath {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"timestamp": 1700000123}`))
	}))
	defer srv.Close()

	ts, err := newTestClient(srv).LastUpdate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 1700000123 {
		t.Errorf("timestamp = %d", ts)
	}
}

func TestPaths(t *testing.T) {
	if got := CategoryProductsPath(7, "it"); got != "/api/products/category/7?lang=it" {
		t.Errorf("CategoryProductsPath = %q", got)
	}
	if got := CategoriesPath("en"); got != "/api/categories-menu?lang=en" {
		t.Errorf("CategoriesPath = %q", got)
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{Kind: KindServer, Status: 503, URL: "http://api/x", Message: "down"}
	if got := err.Error(); got != "fetch http://api/x: server (status 503): down" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain errors should be unknown")
	}
}
