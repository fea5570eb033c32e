package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/menulive/internal/view"
)

func dialHub(t *testing.T, current func() view.Fragment) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, current, nil).HandleWebSocket))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, func() bool { return hub.Clients() == 1 })
	return hub, conn
}

func readFragment(t *testing.T, conn *websocket.Conn) view.Fragment {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string        `json:"type"`
		Payload view.Fragment `json:"payload"`
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if msg.Type != "fragment" {
		t.Fatalf("type = %q, want fragment", msg.Type)
	}
	return msg.Payload
}

func TestWebSocket_SendsCurrentThenBroadcasts(t *testing.T) {
	initial := view.Fragment{View: "categories:it", Lang: "it", Status: "ok", HTML: "<ul>grid</ul>"}
	hub, conn := dialHub(t, func() view.Fragment { return initial })

	if got := readFragment(t, conn); got.HTML != initial.HTML {
		t.Errorf("initial fragment = %q", got.HTML)
	}

	hub.Publish(view.Fragment{View: "category:7:it", Lang: "it", Status: "ok", HTML: "<ul>pizze</ul>"})
	got := readFragment(t, conn)
	if got.View != "category:7:it" || got.HTML != "<ul>pizze</ul>" {
		t.Errorf("broadcast fragment = %+v", got)
	}
}

func TestWebSocket_NoInitialFragmentBeforeFirstRender(t *testing.T) {
	hub, conn := dialHub(t, func() view.Fragment { return view.Fragment{} })

	hub.Publish(view.Fragment{View: "categories:en", Lang: "en", Status: "ok", HTML: "<ul>en</ul>"})
	if got := readFragment(t, conn); got.View != "categories:en" {
		t.Errorf("first frame view = %q, want the published one", got.View)
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	hub, conn := dialHub(t, func() view.Fragment { return view.Fragment{} })
	conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}

func TestWebSocket_ChecksOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	allowed := []string{"https://menu.example.com"}
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, func() view.Fragment { return view.Fragment{} }, allowed).HandleWebSocket))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("dial from a foreign origin should fail")
	}
	if resp == nil {
		t.Fatal("expected an HTTP response for the rejected handshake")
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "json") {
		t.Errorf("Content-Type = %q, want only the upgrader's error reply", ct)
	}

	for _, origin := range []string{"https://menu.example.com", srv.URL} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
		if err != nil {
			t.Fatalf("dial from %s: %v", origin, err)
		}
		conn.Close()
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, func() view.Fragment { return view.Fragment{} }, nil).HandleWebSocket))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 1 })

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after hub shutdown")
	}
}

func TestPublish_DoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish(view.Fragment{View: "categories:it"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
}
