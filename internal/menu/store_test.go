package menu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/menulive/internal/fetch"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource serves canned data and counts loads. When gate is set every load
// blocks until it is closed.
type fakeSource struct {
	categoryCalls atomic.Int32
	bundleCalls   atomic.Int32
	started       chan struct{}
	gate          chan struct{}

	mu      sync.Mutex
	bundles map[string]CategoryProductsBundle
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		started: make(chan struct{}, 16),
		bundles: make(map[string]CategoryProductsBundle),
	}
}

func (f *fakeSource) wait(ctx context.Context) {
	f.started <- struct{}{}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeSource) Categories(ctx context.Context, lang string) ([]CategorySummary, error) {
	f.categoryCalls.Add(1)
	f.wait(ctx)
	name := "Antipasti"
	if lang == "en" {
		name = "Starters"
	}
	return []CategorySummary{{ID: 1, Name: name, ProductCount: 2}}, nil
}

func (f *fakeSource) CategoryProducts(ctx context.Context, categoryID int, lang string) (CategoryProductsBundle, error) {
	f.bundleCalls.Add(1)
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundles[BundleKey(categoryID, lang)], nil
}

func (f *fakeSource) setBundle(id int, lang string, productIDs ...int) {
	b := CategoryProductsBundle{Category: CategorySummary{ID: id, Name: "cat"}}
	for _, pid := range productIDs {
		b.Products = append(b.Products, Product{ID: pid, Name: "p", Available: true, CategoryID: id})
	}
	b.TotalProducts = len(b.Products)
	f.mu.Lock()
	f.bundles[BundleKey(id, lang)] = b
	f.mu.Unlock()
}

func newTestStore(t *testing.T, src Source, clock *fakeClock) *Store {
	t.Helper()
	cfg := StoreConfig{TTL: 30 * time.Second}
	if clock != nil {
		cfg.Now = clock.Now
	}
	s, err := NewStore(src, cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_ConcurrentMissesIssueOneFetch(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	s := newTestStore(t, src, nil)

	const callers = 20
	var ready, done sync.WaitGroup
	ready.Add(callers)
	done.Add(callers)
	results := make([][]CategorySummary, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			v, err := s.Categories(context.Background(), "it")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}
	ready.Wait()
	<-src.started
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	done.Wait()

	if n := src.categoryCalls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	for i, r := range results {
		if diff := cmp.Diff(results[0], r); diff != "" {
			t.Errorf("caller %d got a different payload:\n%s", i, diff)
		}
	}
}

func TestStore_TTLWindow(t *testing.T) {
	clock := newFakeClock()
	src := newFakeSource()
	s := newTestStore(t, src, clock)

	if _, err := s.Categories(context.Background(), "it"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(29 * time.Second)
	_, _ = s.Categories(context.Background(), "it")
	if n := src.categoryCalls.Load(); n != 1 {
		t.Fatalf("fetches at t=29s = %d, want 1", n)
	}
	clock.Advance(2 * time.Second)
	_, _ = s.Categories(context.Background(), "it")
	if n := src.categoryCalls.Load(); n != 2 {
		t.Errorf("fetches at t=31s = %d, want 2", n)
	}
}

func TestStore_LanguagesAreSeparate(t *testing.T) {
	src := newFakeSource()
	s := newTestStore(t, src, nil)

	it, _ := s.Categories(context.Background(), "it")
	en, _ := s.Categories(context.Background(), "en")
	if it[0].Name != "Antipasti" || en[0].Name != "Starters" {
		t.Errorf("got it=%q en=%q", it[0].Name, en[0].Name)
	}
	if n := src.categoryCalls.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}

	src.setBundle(5, "en", 1)
	if _, err := s.CategoryProducts(context.Background(), 5, "en"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.bundles.Peek("5_it"); ok {
		t.Error("5_it must miss after loading 5_en")
	}
}

func TestStore_TimeoutLeavesKeyUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := fetch.New(fetch.Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	s := newTestStore(t, APISource{Client: client}, nil)

	_, err := s.CategoryProducts(context.Background(), 7, "it")
	if !fetch.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, ok := s.bundles.Peek("7_it"); ok {
		t.Error("7_it should remain unset after a timeout")
	}
}

func TestStore_InvalidatedInFlightLoadIsNotStored(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	s := newTestStore(t, src, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Categories(context.Background(), "it")
		errc <- err
	}()
	<-src.started
	s.InvalidateAll()
	close(src.gate)

	if err := <-errc; err != nil {
		t.Fatalf("caller should still get the result: %v", err)
	}
	if _, ok := s.categories.Peek("cat_it"); ok {
		t.Error("a load that started before the invalidation must not be stored")
	}

	_, _ = s.Categories(context.Background(), "it")
	if n := src.categoryCalls.Load(); n != 2 {
		t.Errorf("fetches = %d, want a fresh fetch after invalidation", n)
	}
}

func TestStore_CallerCancelDoesNotAbortSharedLoad(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	s := newTestStore(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Categories(ctx, "it")
		errc <- err
	}()
	<-src.started
	cancel()
	if err := <-errc; err == nil {
		t.Fatal("cancelled caller should return an error")
	}
	close(src.gate)

	v, err := s.Categories(context.Background(), "it")
	if err != nil || len(v) != 1 {
		t.Fatalf("got %v, %v", v, err)
	}
	if n := src.categoryCalls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestStore_RemoveProductPatchesInPlace(t *testing.T) {
	clock := newFakeClock()
	src := newFakeSource()
	src.setBundle(5, "it", 1, 2)
	src.setBundle(5, "en", 1, 2)
	s := newTestStore(t, src, clock)

	ctx := context.Background()
	_, _ = s.Categories(ctx, "it")
	_, _ = s.CategoryProducts(ctx, 5, "it")
	_, _ = s.CategoryProducts(ctx, 5, "en")

	clock.Advance(20 * time.Second)
	change := s.RemoveProduct(2)
	if !change.TouchesCategory(5) || !change.TouchesCategories() {
		t.Errorf("unexpected change %+v", change)
	}

	for _, lang := range []string{"it", "en"} {
		b, ok := s.bundles.Peek(BundleKey(5, lang))
		if !ok {
			t.Fatalf("bundle 5_%s should still be cached", lang)
		}
		if b.Contains(2) || b.TotalProducts != 1 {
			t.Errorf("bundle 5_%s not patched: %+v", lang, b)
		}
	}
	if _, ok := s.categories.Peek("cat_it"); ok {
		t.Error("category list should be invalidated after a deletion")
	}
	if n := src.bundleCalls.Load(); n != 2 {
		t.Errorf("deletion must not refetch, fetches = %d", n)
	}

	// Patching keeps the original StoredAt.
	clock.Advance(11 * time.Second)
	if _, ok := s.bundles.Peek("5_it"); ok {
		t.Error("patched bundle should expire 30s after it was first stored")
	}
}

func TestStore_RemoveUnknownProductIsNoop(t *testing.T) {
	src := newFakeSource()
	src.setBundle(5, "it", 1)
	s := newTestStore(t, src, nil)

	ctx := context.Background()
	_, _ = s.Categories(ctx, "it")
	before, _ := s.CategoryProducts(ctx, 5, "it")

	change := s.RemoveProduct(99)
	if !change.Empty() {
		t.Errorf("expected empty change, got %+v", change)
	}
	if _, ok := s.categories.Peek("cat_it"); !ok {
		t.Error("category list should be untouched")
	}
	after, ok := s.bundles.Peek("5_it")
	if !ok {
		t.Fatal("bundle should be untouched")
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("bundle changed:\n%s", diff)
	}
}

func TestStore_InvalidateProduct(t *testing.T) {
	src := newFakeSource()
	src.setBundle(5, "it", 1)
	src.setBundle(5, "en", 1)
	src.setBundle(3, "it", 9) // parent category listing a child-category product
	src.setBundle(4, "it", 2)
	s := newTestStore(t, src, nil)

	ctx := context.Background()
	for _, id := range []int{5, 3, 4} {
		_, _ = s.CategoryProducts(ctx, id, "it")
	}
	_, _ = s.CategoryProducts(ctx, 5, "en")
	_, _ = s.Categories(ctx, "it")

	change := s.InvalidateProduct(9, 5, true)
	for _, key := range []string{"5_it", "5_en", "3_it", "cat_it"} {
		if _, ok := s.bundles.Peek(key); ok {
			t.Errorf("%s should be invalidated", key)
		}
	}
	if _, ok := s.categories.Peek("cat_it"); ok {
		t.Error("cat_it should be invalidated")
	}
	if _, ok := s.bundles.Peek("4_it"); !ok {
		t.Error("4_it should be kept")
	}
	if !change.TouchesCategory(3) || !change.TouchesCategory(5) || change.TouchesCategory(4) {
		t.Errorf("unexpected change %+v", change)
	}
}

func TestStore_VisibleUnlistedProductReachesParentBundle(t *testing.T) {
	src := newFakeSource()
	src.setBundle(1, "it", 10) // parent of category 2
	src.setBundle(3, "it", 30)
	s := newTestStore(t, src, nil)

	ctx := context.Background()
	_, _ = s.CategoryProducts(ctx, 1, "it")
	_, _ = s.CategoryProducts(ctx, 3, "it")

	// Product 20 appears in child category 2, so the parent now lists it too.
	src.setBundle(1, "it", 10, 20)
	change := s.InvalidateProduct(20, 2, true)
	if !change.All || !change.TouchesCategory(1) {
		t.Errorf("change = %+v, want everything invalidated", change)
	}
	if n := s.bundles.Len(); n != 0 {
		t.Errorf("bundles left = %d, want 0", n)
	}

	b, err := s.CategoryProducts(ctx, 1, "it")
	if err != nil {
		t.Fatalf("CategoryProducts: %v", err)
	}
	if !b.Contains(20) {
		t.Errorf("parent bundle = %+v, want product 20", b.Products)
	}
}

func TestStore_HiddenUnlistedProductStaysTargeted(t *testing.T) {
	src := newFakeSource()
	src.setBundle(1, "it", 10)
	src.setBundle(2, "it", 11)
	s := newTestStore(t, src, nil)

	ctx := context.Background()
	_, _ = s.CategoryProducts(ctx, 1, "it")
	_, _ = s.CategoryProducts(ctx, 2, "it")

	change := s.InvalidateProduct(20, 2, false)
	if change.All {
		t.Errorf("change = %+v, want a targeted invalidation", change)
	}
	if _, ok := s.bundles.Peek("1_it"); !ok {
		t.Error("1_it should be kept")
	}
	if _, ok := s.bundles.Peek("2_it"); ok {
		t.Error("2_it should be invalidated")
	}
}

func TestStore_RistrettoBackend(t *testing.T) {
	src := newFakeSource()
	s, err := NewStore(src, StoreConfig{Backend: "ristretto", MaxEntries: 100})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	_, _ = s.Categories(context.Background(), "it")
	_, _ = s.Categories(context.Background(), "it")
	if n := src.categoryCalls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if st := s.Stats()["categories"]; st.Hits != 1 || st.Items != 1 {
		t.Errorf("stats = %+v", st)
	}
}
