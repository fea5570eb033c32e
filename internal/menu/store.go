package menu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/menulive/internal/cache"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
)

// StoreConfig configures the caches behind a Store.
type StoreConfig struct {
	TTL        time.Duration
	Backend    string // memory or ristretto
	MaxEntries int64
	// Now overrides time.Now in tests.
	Now func() time.Time
}

// Store serves categories and bundles from TTL caches, loading misses from a
// Source. Concurrent misses on a key share one load. A load that is still in
// flight when its key is invalidated returns its result to the waiting callers
// but is not stored.
type Store struct {
	src        Source
	categories *cache.TTL[[]CategorySummary]
	bundles    *cache.TTL[CategoryProductsBundle]
	closers    []io.Closer
	group      singleflight.Group
	log        *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	stale bool
}

// NewStore builds a Store over src.
func NewStore(src Source, cfg StoreConfig) (*Store, error) {
	var opts []cache.Option
	if cfg.Now != nil {
		opts = append(opts, cache.WithClock(cfg.Now))
	}
	s := &Store{
		src:      src,
		log:      logger.WithComponent("cache"),
		inflight: make(map[string]*flight),
	}

	catBackend, err := s.backend(cfg)
	if err != nil {
		return nil, fmt.Errorf("categories cache: %w", err)
	}
	bundleBackend, err := s.backend(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("bundles cache: %w", err)
	}
	s.categories = cache.NewTTL[[]CategorySummary]("categories", catBackend, cfg.TTL, opts...)
	s.bundles = cache.NewTTL[CategoryProductsBundle]("bundles", bundleBackend, cfg.TTL, opts...)
	return s, nil
}

func (s *Store) backend(cfg StoreConfig) (cache.Backend, error) {
	b, err := cache.NewBackend(cfg.Backend, cfg.MaxEntries)
	if err != nil {
		return nil, err
	}
	if c, ok := b.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	return b, nil
}

// Close releases backend resources.
func (s *Store) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}

// Categories returns the category list in lang.
func (s *Store) Categories(ctx context.Context, lang string) ([]CategorySummary, error) {
	return load(ctx, s, s.categories, CategoriesKey(lang), func(ctx context.Context) ([]CategorySummary, error) {
		return s.src.Categories(ctx, lang)
	})
}

// CategoryProducts returns the products of categoryID in lang.
func (s *Store) CategoryProducts(ctx context.Context, categoryID int, lang string) (CategoryProductsBundle, error) {
	return load(ctx, s, s.bundles, BundleKey(categoryID, lang), func(ctx context.Context) (CategoryProductsBundle, error) {
		return s.src.CategoryProducts(ctx, categoryID, lang)
	})
}

func load[T any](ctx context.Context, s *Store, c *cache.TTL[T], key string, fetchFn func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		f := s.begin(key)
		// The shared load outlives any single caller; fetch applies its own timeout.
		v, err := fetchFn(context.WithoutCancel(ctx))
		s.finish(key, f, func() {
			if err != nil {
				return
			}
			if f.stale {
				metrics.DiscardedLoads.WithLabelValues(c.Name()).Inc()
				s.log.Debug("discarding load invalidated while in flight", "key", key)
				return
			}
			c.Put(key, v)
		})
		return v, err
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedLoads.WithLabelValues(c.Name()).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (s *Store) begin(key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &flight{}
	s.inflight[key] = f
	return f
}

// finish runs store under the lock so an invalidation cannot slip in between
// the staleness check and the write.
func (s *Store) finish(key string, f *flight, store func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store()
	if s.inflight[key] == f {
		delete(s.inflight, key)
	}
}

// markStaleLocked flags matching in-flight loads and detaches them so the next
// caller starts a fresh load.
func (s *Store) markStaleLocked(match func(key string) bool) {
	for key, f := range s.inflight {
		if match(key) {
			f.stale = true
			delete(s.inflight, key)
			s.group.Forget(key)
		}
	}
}

func isCategoriesKey(key string) bool { return strings.HasPrefix(key, categoriesPrefix) }

// InvalidateProduct drops the bundles of categoryID (0 when unknown) and every
// cached bundle listing productID, along with the category lists. A visible
// product that no cached bundle lists may be new to any ancestor's list, so
// everything is dropped.
func (s *Store) InvalidateProduct(productID, categoryID int, visible bool) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	var holders []string
	for _, key := range s.bundles.Keys() {
		if b, ok := s.bundles.Peek(key); ok && b.Contains(productID) {
			holders = append(holders, key)
		}
	}
	if visible && len(holders) == 0 {
		s.invalidateAllLocked()
		return Change{All: true}
	}

	change := Change{Categories: true}
	if categoryID > 0 {
		prefix := bundlePrefix(categoryID)
		s.markStaleLocked(func(key string) bool {
			return isCategoriesKey(key) || strings.HasPrefix(key, prefix)
		})
		s.bundles.InvalidatePrefix(prefix)
		change.addCategory(categoryID)
	} else {
		// Any in-flight bundle may hold the product.
		s.markStaleLocked(func(string) bool { return true })
	}

	for _, key := range holders {
		s.bundles.Invalidate(key)
		if id, _, ok := ParseBundleKey(key); ok {
			change.addCategory(id)
		}
	}
	s.categories.InvalidateAll()
	return change
}

// RemoveProduct deletes productID in place from every cached bundle listing it.
// Patched entries keep their StoredAt. Category lists are dropped only when a
// bundle was patched; a product held by no bundle is a no-op.
func (s *Store) RemoveProduct(productID int) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An in-flight bundle load may still carry the product.
	s.markStaleLocked(func(key string) bool { return !isCategoriesKey(key) })

	var change Change
	for _, key := range s.bundles.Keys() {
		patched := s.bundles.Update(key, func(b CategoryProductsBundle) (CategoryProductsBundle, bool) {
			return b.Without(productID)
		})
		if !patched {
			continue
		}
		if id, _, ok := ParseBundleKey(key); ok {
			change.addCategory(id)
		}
	}
	if change.Empty() {
		return change
	}
	s.markStaleLocked(isCategoriesKey)
	s.categories.InvalidateAll()
	change.Categories = true
	s.log.Debug("removed product from cached bundles", "product_id", productID, "categories", change.CategoryIDs)
	return change
}

// InvalidateAll empties both caches.
func (s *Store) InvalidateAll() Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateAllLocked()
	return Change{All: true}
}

func (s *Store) invalidateAllLocked() {
	s.markStaleLocked(func(string) bool { return true })
	n := s.categories.InvalidateAll() + s.bundles.InvalidateAll()
	s.log.Debug("invalidated all entries", "count", n)
}

// Sizers exposes the caches to the metrics collector.
func (s *Store) Sizers() map[string]metrics.Sizer {
	return map[string]metrics.Sizer{
		"categories": s.categories,
		"bundles":    s.bundles,
	}
}

// Stats returns per-cache statistics.
func (s *Store) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"categories": s.categories.Stats(),
		"bundles":    s.bundles.Stats(),
	}
}
