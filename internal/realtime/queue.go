package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
)

// RenderFunc re-renders the view identified by key.
type RenderFunc func(ctx context.Context, key string) error

// RenderQueue serializes re-renders and drops a request for a view key that is
// already waiting. The pending mark is cleared when the render starts, so a
// request arriving mid-render queues a fresh one.
type RenderQueue struct {
	render RenderFunc
	queue  chan string
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewRenderQueue creates a queue holding up to size distinct pending renders.
func NewRenderQueue(render RenderFunc, size int) *RenderQueue {
	if size < 1 {
		size = 16
	}
	return &RenderQueue{
		render:  render,
		queue:   make(chan string, size),
		log:     logger.WithComponent("realtime"),
		pending: make(map[string]struct{}),
	}
}

// Request schedules a render of key and reports whether it was queued.
func (q *RenderQueue) Request(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		metrics.RendersCoalesced.Inc()
		return false
	}
	select {
	case q.queue <- key:
		q.pending[key] = struct{}{}
		return true
	default:
		q.log.Warn("render queue full, dropping request", "view", key)
		return false
	}
}

// Run renders queued keys until ctx is done.
func (q *RenderQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-q.queue:
			q.mu.Lock()
			delete(q.pending, key)
			q.mu.Unlock()

			if err := q.render(logger.ContextWithView(ctx, key), key); err != nil {
				q.log.Warn("re-render failed", "view", key, "error", err)
			}
		}
	}
}
