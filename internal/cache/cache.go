// Package cache implements the time-bounded memoization used by the menu view:
// typed TTL caches layered over a pluggable storage backend.
package cache

import "time"

// Entry is a cached payload together with the moment it was stored.
type Entry struct {
	Key      string
	Payload  any
	StoredAt time.Time
}

// Backend stores entries by key. Backends never look at StoredAt; expiry is the
// TTL layer's job.
type Backend interface {
	// Load returns the entry stored under key.
	Load(key string) (*Entry, bool)

	// Store saves e under e.Key, overwriting any existing entry.
	Store(e *Entry)

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// Clear removes every entry and returns how many were dropped.
	Clear() int

	// Keys returns the keys currently held, in no particular order.
	Keys() []string

	// Len returns the number of entries held.
	Len() int
}

// Stats represents cache statistics.
type Stats struct {
	Hits          uint64 // Total cache hits
	Misses        uint64 // Total cache misses, expired reads included
	Expirations   uint64 // Entries evicted on read because their TTL elapsed
	Invalidations uint64 // Entries removed by Invalidate*
	Items         int    // Current number of items
}

// NewBackend returns the backend named by kind ("memory" or "ristretto").
// Unknown kinds fall back to memory.
func NewBackend(kind string, maxEntries int64) (Backend, error) {
	if kind == "ristretto" {
		return NewRistretto(maxEntries)
	}
	return NewMemory(), nil
}
