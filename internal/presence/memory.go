package presence

import (
	"context"
	"sync"
)

// MemoryBackend implements Backend in process memory. It only gives a
// cluster-wide view when a single process serves every connection.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

// Put implements Backend.Put
func (m *MemoryBackend) Put(_ context.Context, id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = string(value)
	return nil
}

// Delete implements Backend.Delete
func (m *MemoryBackend) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// All implements Backend.All
func (m *MemoryBackend) All(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

// Expire implements Backend.Expire
func (m *MemoryBackend) Expire(_ context.Context, observed map[string]string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, value := range observed {
		if cur, ok := m.entries[id]; ok && cur == value {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	return nil
}
