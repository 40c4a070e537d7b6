package cache

import (
	"context"
	"sync"
)

// MemoryClient is an in-process Client used in tests and in deployments where
// the cache cluster is seeded out of band. Safe for concurrent use.
type MemoryClient struct {
	mu     sync.RWMutex
	caches map[string]map[string]Value
}

// NewMemoryClient constructs an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{caches: make(map[string]map[string]Value)}
}

// Get returns the value stored for the key or ErrNotFound.
func (m *MemoryClient) Get(_ context.Context, cache string, key Key) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.caches[cache]
	if !ok {
		return nil, ErrNotFound
	}
	value, ok := slot[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(Value, len(value))
	copy(out, value)
	return out, nil
}

// Put stores the value under the key, replacing any previous value.
func (m *MemoryClient) Put(_ context.Context, cache string, key Key, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.caches[cache]
	if !ok {
		slot = make(map[string]Value)
		m.caches[cache] = slot
	}
	stored := make(Value, len(value))
	copy(stored, value)
	slot[key.String()] = stored
	return nil
}
