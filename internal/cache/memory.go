package cache

import "sync"

// MemoryBackend is an unbounded map. Entry count is bounded by the number of
// categories times the number of languages, so no eviction policy is needed.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]*Entry)}
}

func (m *MemoryBackend) Load(key string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	return e, ok
}

func (m *MemoryBackend) Store(e *Entry) {
	m.mu.Lock()
	m.data[e.Key] = e
	m.mu.Unlock()
}

func (m *MemoryBackend) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

func (m *MemoryBackend) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data)
	m.data = make(map[string]*Entry)
	return n
}

func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
