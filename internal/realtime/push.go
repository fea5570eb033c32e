package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
	"github.com/onnwee/menulive/internal/secrets"
)

const (
	// Time allowed to write a control frame to the server
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the server
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size accepted from the server
	maxMessageSize = 64 << 10
)

// WSChannel subscribes to the menu push channel over a websocket and keeps the
// subscription alive across disconnects.
type WSChannel struct {
	url    string
	dialer *websocket.Dialer
	base   time.Duration
	max    time.Duration
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSChannel creates a channel for url. base and max bound the reconnect backoff.
func NewWSChannel(url string, base, max time.Duration) *WSChannel {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = 30 * time.Second
	}
	return &WSChannel{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		base:   base,
		max:    max,
		log:    logger.WithComponent("realtime"),
	}
}

// Connect dials the push channel once.
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	metrics.PushConnected.Set(1)
	c.log.Info("push channel connected", "url", secrets.MaskURL(c.url))
	return nil
}

// Run reads signals until ctx is done. Connect must have succeeded first.
// After a lost connection it redials with jittered exponential backoff and calls
// onReconnect once the new connection is up, since signals may have been missed.
func (c *WSChannel) Run(ctx context.Context, onSignal func(Signal), onReconnect func()) {
	defer c.close()

	for {
		err := c.read(ctx, onSignal)
		metrics.PushConnected.Set(0)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("push channel lost", "error", err)

		if !c.redial(ctx) {
			return
		}
		metrics.PushReconnects.Inc()
		onReconnect()
	}
}

func (c *WSChannel) redial(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		wait := backoff(attempt, c.base, c.max)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if err := c.Connect(ctx); err != nil {
			c.log.Debug("push reconnect failed", "attempt", attempt+1, "next_in", wait, "error", err)
			continue
		}
		return true
	}
}

func (c *WSChannel) read(ctx context.Context, onSignal func(Signal)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("push channel not connected")
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(ctx, conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		sig, err := ParseMessage(data)
		if err != nil {
			c.log.Warn("ignoring malformed push message", "error", err)
			continue
		}
		onSignal(sig)
	}
}

// keepalive pings the server and closes conn when ctx ends so a blocked read returns.
func (c *WSChannel) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *WSChannel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	metrics.PushConnected.Set(0)
}

// backoff returns base*2^attempt capped at max, with equal jitter in [d/2, d].
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
