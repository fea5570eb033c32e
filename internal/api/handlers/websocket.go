package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
	"github.com/onnwee/menulive/internal/middleware"
	"github.com/onnwee/menulive/internal/view"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Displays never send anything but control frames
	maxMessageSize = 512

	sendBuffer = 16
)

// WebSocketMessage is the envelope sent to displays.
type WebSocketMessage struct {
	Type    string      `json:"type"` // "fragment"
	Payload interface{} `json:"payload"`
}

// Client is one connected display.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans rendered fragments out to every connected display.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logger.Info("Display connected", "total_clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.dropLocked(client)
				logger.Info("Display disconnected", "total_clients", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.WebSocketMessagesSent.Inc()
				default:
					// Slow display; it reloads the active view on reconnect
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.WebSocketConnections.Dec()
}

// Clients returns the number of connected displays.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts f to every display. It never blocks the renderer: when the
// broadcast buffer is full the fragment is dropped.
func (h *Hub) Publish(f view.Fragment) {
	data, err := encodeFragment(f)
	if err != nil {
		logger.Error("Failed to marshal fragment message", "error", err, "view", f.View)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("Fragment broadcast buffer full, dropping", "view", f.View)
	}
}

func encodeFragment(f view.Fragment) ([]byte, error) {
	return json.Marshal(WebSocketMessage{Type: "fragment", Payload: f})
}

// readPump discards client frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Display websocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump sends one fragment per frame and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketHandler upgrades display connections and attaches them to a hub.
type WebSocketHandler struct {
	hub      *Hub
	current  func() view.Fragment
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler. current supplies the fragment a new
// display starts from. Browsers may connect from the server's own origin or
// from allowedOrigins; clients sending no Origin are always accepted.
func NewWebSocketHandler(hub *Hub, current func() view.Fragment, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		current: current,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, allowedOrigins)
			},
		},
	}
}

func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return middleware.OriginAllowed(origin, allowed)
}

// HandleWebSocket handles GET /menu/ws.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		logger.WarnContext(r.Context(), "Failed to upgrade to WebSocket", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, sendBuffer)}

	// Queue the active fragment before registering so it is the first frame.
	if f := h.current(); f.View != "" {
		if data, err := encodeFragment(f); err == nil {
			client.send <- data
		}
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
