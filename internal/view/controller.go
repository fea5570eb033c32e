package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/menulive/internal/errorreporting"
	"github.com/onnwee/menulive/internal/fetch"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/menu"
	"github.com/onnwee/menulive/internal/metrics"
)

// ErrStaleView is returned by Refresh when the requested view is no longer on display.
var ErrStaleView = errors.New("view is not active")

// Store is the menu data the controller renders.
type Store interface {
	Categories(ctx context.Context, lang string) ([]menu.CategorySummary, error)
	CategoryProducts(ctx context.Context, categoryID int, lang string) (menu.CategoryProductsBundle, error)
	InvalidateAll() menu.Change
}

// Publisher receives every rendered fragment.
type Publisher interface {
	Publish(f Fragment)
}

// Controller owns the display state: the active view, the language and the
// last rendered fragment. Operations are serialized.
type Controller struct {
	store    Store
	renderer *Renderer
	pub      Publisher
	now      func() time.Time
	log      *slog.Logger

	op sync.Mutex // serializes render operations

	mu     sync.RWMutex
	active View
	last   Fragment
}

// NewController creates a controller showing the category grid in lang.
// pub may be nil.
func NewController(store Store, renderer *Renderer, pub Publisher, lang string) *Controller {
	return &Controller{
		store:    store,
		renderer: renderer,
		pub:      pub,
		now:      time.Now,
		log:      logger.WithComponent("view"),
		active:   View{Kind: KindCategories, Lang: menu.NormalizeLang(lang)},
	}
}

// ActiveView returns the view on display.
func (c *Controller) ActiveView() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Language returns the display language.
func (c *Controller) Language() string { return c.ActiveView().Lang }

// Current returns the last rendered fragment, zero before the first render.
func (c *Controller) Current() Fragment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// LoadCategories returns the category list in the display language.
func (c *Controller) LoadCategories(ctx context.Context) ([]menu.CategorySummary, error) {
	return c.store.Categories(ctx, c.Language())
}

// ShowCategories makes the category grid the active view and renders it.
func (c *Controller) ShowCategories(ctx context.Context) (Fragment, error) {
	c.op.Lock()
	defer c.op.Unlock()

	v := View{Kind: KindCategories, Lang: c.Language()}
	c.setActive(v)
	return c.render(ctx, v)
}

// ShowCategoryProducts makes the product list of categoryID the active view and
// renders it. name is shown until the loaded category carries its own.
func (c *Controller) ShowCategoryProducts(ctx context.Context, categoryID int, name string) (Fragment, error) {
	c.op.Lock()
	defer c.op.Unlock()

	v := View{Kind: KindCategory, Lang: c.Language(), CategoryID: categoryID, CategoryName: name}
	c.setActive(v)
	return c.render(ctx, v)
}

// InvalidateAndRefresh drops every cached entry and re-renders the active view.
func (c *Controller) InvalidateAndRefresh(ctx context.Context) (Fragment, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.store.InvalidateAll()
	return c.render(ctx, c.ActiveView())
}

// SetLanguage switches the display language and re-renders the active view in it.
func (c *Controller) SetLanguage(ctx context.Context, lang string) (Fragment, error) {
	c.op.Lock()
	defer c.op.Unlock()

	v := c.ActiveView()
	v.Lang = menu.NormalizeLang(lang)
	c.setActive(v)
	c.log.Info("display language changed", "lang", v.Lang)
	return c.render(ctx, v)
}

// Refresh re-renders viewKey if it is still the active view.
func (c *Controller) Refresh(ctx context.Context, viewKey string) error {
	c.op.Lock()
	defer c.op.Unlock()

	v := c.ActiveView()
	if v.Key() != viewKey {
		c.log.Debug("skipping refresh of inactive view", "view", viewKey, "active", v.Key())
		return ErrStaleView
	}
	_, err := c.render(ctx, v)
	return err
}

// AffectedView returns the active view key when change touches it.
func (c *Controller) AffectedView(change menu.Change) (string, bool) {
	v := c.ActiveView()
	switch v.Kind {
	case KindCategories:
		return v.Key(), change.TouchesCategories()
	case KindCategory:
		return v.Key(), change.TouchesCategory(v.CategoryID)
	}
	return "", false
}

func (c *Controller) setActive(v View) {
	c.mu.Lock()
	c.active = v
	c.mu.Unlock()
}

// render loads v's data and renders it. A load failure renders the error state
// and is returned alongside that fragment. A load abandoned because ctx ended
// leaves the current fragment untouched.
func (c *Controller) render(ctx context.Context, v View) (Fragment, error) {
	ctx = logger.ContextWithView(ctx, v.Key())

	html, loadErr := c.renderData(ctx, v)
	if loadErr != nil && ctx.Err() != nil {
		logger.DebugContext(ctx, "view load abandoned by caller", "error", loadErr)
		return Fragment{}, loadErr
	}
	f := Fragment{View: v.Key(), Lang: v.Lang, Status: "ok", RenderedAt: c.now()}
	if loadErr != nil {
		kind := fetch.KindOf(loadErr)
		f.Status = "error"
		f.ErrorKind = kind.String()
		logger.WarnContext(ctx, "view load failed", "kind", kind, "error", loadErr)
		if kind == fetch.KindServer || kind == fetch.KindUnknown {
			errorreporting.CaptureErrorWithContext(loadErr,
				map[string]string{"view": v.Kind.String(), "kind": kind.String()},
				map[string]interface{}{"view_key": v.Key()})
		}
		var err error
		html, err = c.renderer.Error(v, loadErr)
		if err != nil {
			return Fragment{}, err
		}
	}
	f.HTML = string(html)
	metrics.Renders.WithLabelValues(v.Kind.String(), f.Status).Inc()

	c.mu.Lock()
	c.last = f
	c.mu.Unlock()

	if c.pub != nil {
		c.pub.Publish(f)
	}
	return f, loadErr
}

func (c *Controller) renderData(ctx context.Context, v View) ([]byte, error) {
	switch v.Kind {
	case KindCategory:
		b, err := c.store.CategoryProducts(ctx, v.CategoryID, v.Lang)
		if err != nil {
			return nil, err
		}
		return c.renderer.Products(v, b)
	default:
		cats, err := c.store.Categories(ctx, v.Lang)
		if err != nil {
			return nil, err
		}
		return c.renderer.Categories(v, cats)
	}
}
