package cache

import (
	"sync"

	"github.com/dgraph-io/ristretto"
)

// RistrettoBackend is a size-bounded backend using ristretto. Ristretto cannot
// enumerate its keys, so a side index tracks what was stored; keys that ristretto
// evicted on its own are pruned lazily by Keys.
type RistrettoBackend struct {
	cache *ristretto.Cache

	mu    sync.Mutex
	index map[string]struct{}
}

// NewRistretto creates a backend holding at most maxEntries entries.
func NewRistretto(maxEntries int64) (*RistrettoBackend, error) {
	if maxEntries < 1 {
		maxEntries = 1000
	}
	// NumCounters should be ~10x the number of entries for optimal performance
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	config := &ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxEntries, // every entry costs 1
		BufferItems:        64,         // Number of keys per Get buffer
		IgnoreInternalCost: true,
	}

	c, err := ristretto.NewCache(config)
	if err != nil {
		return nil, err
	}

	return &RistrettoBackend{
		cache: c,
		index: make(map[string]struct{}),
	}, nil
}

func (r *RistrettoBackend) Load(key string) (*Entry, bool) {
	val, found := r.cache.Get(key)
	if !found {
		return nil, false
	}
	e, ok := val.(*Entry)
	if !ok {
		// Invalid item type, delete it
		r.Delete(key)
		return nil, false
	}
	return e, true
}

func (r *RistrettoBackend) Store(e *Entry) {
	// Set returns false when the admission policy drops the item
	accepted := r.cache.Set(e.Key, e, 1)
	// Wait for value to pass through buffers so an immediate Load sees it
	r.cache.Wait()

	r.mu.Lock()
	if accepted {
		r.index[e.Key] = struct{}{}
	} else {
		delete(r.index, e.Key)
	}
	r.mu.Unlock()
}

func (r *RistrettoBackend) Delete(key string) bool {
	_, present := r.cache.Get(key)
	r.cache.Del(key)

	r.mu.Lock()
	delete(r.index, key)
	r.mu.Unlock()
	return present
}

func (r *RistrettoBackend) Clear() int {
	r.mu.Lock()
	n := len(r.index)
	r.index = make(map[string]struct{})
	r.mu.Unlock()

	r.cache.Clear()
	return n
}

func (r *RistrettoBackend) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.index))
	for k := range r.index {
		if _, ok := r.cache.Get(k); !ok {
			delete(r.index, k)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func (r *RistrettoBackend) Len() int {
	return len(r.Keys())
}

// Close releases ristretto's goroutines.
func (r *RistrettoBackend) Close() error {
	r.cache.Close()
	return nil
}
