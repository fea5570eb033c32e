package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/menu"
	"github.com/onnwee/menulive/internal/metrics"
)

// Mode is the invalidation strategy picked at startup.
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// Invalidator is the cache surface the trigger drives.
type Invalidator interface {
	InvalidateProduct(productID, categoryID int, visible bool) menu.Change
	RemoveProduct(productID int) menu.Change
	InvalidateAll() menu.Change
}

// Viewer maps cache changes to the displayed view and re-renders it.
type Viewer interface {
	// AffectedView returns the key of the active view when change touches it.
	AffectedView(change menu.Change) (string, bool)
	Refresh(ctx context.Context, viewKey string) error
}

// Options configures a Trigger.
type Options struct {
	PushURL       string
	PollInterval  time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Trigger turns server-side mutations into cache invalidations and re-renders.
// Exactly one of push or poll runs for the trigger's lifetime.
type Trigger struct {
	opts    Options
	store   Invalidator
	updates LastUpdater
	view    Viewer
	queue   *RenderQueue
	log     *slog.Logger

	mu   sync.Mutex
	mode Mode
	wg   sync.WaitGroup
}

// New creates a trigger. updates is only used in poll mode.
func New(opts Options, store Invalidator, updates LastUpdater, view Viewer) *Trigger {
	return &Trigger{
		opts:    opts,
		store:   store,
		updates: updates,
		view:    view,
		queue:   NewRenderQueue(view.Refresh, 16),
		log:     logger.WithComponent("realtime"),
	}
}

// Start picks the mode and launches the background goroutines, which stop when
// ctx is done. Push is used when a push URL is configured and the first
// connection succeeds; otherwise the trigger polls.
func (t *Trigger) Start(ctx context.Context) Mode {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.queue.Run(ctx)
	}()

	mode := ModePoll
	if t.opts.PushURL != "" {
		ch := NewWSChannel(t.opts.PushURL, t.opts.ReconnectBase, t.opts.ReconnectMax)
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ch.Connect(dialCtx)
		cancel()
		if err == nil {
			mode = ModePush
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				ch.Run(ctx, func(sig Signal) { t.Apply(sig) }, t.resync)
			}()
		} else {
			t.log.Warn("push channel unavailable, falling back to polling", "error", err)
		}
	}

	if mode == ModePoll {
		p := NewPoller(t.updates, t.opts.PollInterval)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			p.Run(ctx, func() {
				metrics.InvalidationSignals.WithLabelValues("poll").Inc()
				t.rerender(t.store.InvalidateAll())
			})
		}()
	}

	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
	t.log.Info("invalidation trigger started", "mode", mode)
	return mode
}

// Mode returns the mode chosen by Start, empty before Start.
func (t *Trigger) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Wait blocks until the background goroutines exit.
func (t *Trigger) Wait() { t.wg.Wait() }

// Apply invalidates what sig touches and schedules a re-render of the active
// view when it is affected.
func (t *Trigger) Apply(sig Signal) menu.Change {
	var change menu.Change
	switch sig.Kind {
	case ProductAdded:
		if sig.Available != nil && !*sig.Available {
			t.log.Debug("ignoring unavailable new product", "product_id", sig.ProductID)
			return change
		}
		// Parent categories list their children's products.
		change = t.store.InvalidateAll()
	case ProductUpdated:
		visible := sig.Available == nil || *sig.Available
		change = t.store.InvalidateProduct(sig.ProductID, sig.CategoryID, visible)
	case ProductDeleted:
		change = t.store.RemoveProduct(sig.ProductID)
	case CategoryUpdated, CategoryDeleted:
		change = t.store.InvalidateAll()
	default:
		return change
	}
	metrics.InvalidationSignals.WithLabelValues(sig.Kind.String()).Inc()
	t.log.Debug("applied invalidation signal", "kind", sig.Kind, "product_id", sig.ProductID, "category_id", sig.CategoryID)
	t.rerender(change)
	return change
}

// resync drops everything after a reconnect.
func (t *Trigger) resync() {
	metrics.InvalidationSignals.WithLabelValues("reconnect").Inc()
	t.rerender(t.store.InvalidateAll())
}

func (t *Trigger) rerender(change menu.Change) {
	if change.Empty() {
		return
	}
	if key, ok := t.view.AffectedView(change); ok {
		t.queue.Request(key)
	}
}
