// Package kvstore provides the key/value stores behind tunables.
package kvstore

import (
	"sort"
	"sync"
)

// Memory is a Store that keeps every value in process memory.
type Memory struct {
	lock   sync.RWMutex
	values map[string]any
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

// Get returns the value at path.
func (m *Memory) Get(path string) (any, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.values[path]
	return v, ok
}

// Set stores value at path.
func (m *Memory) Set(path string, value any) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.values[path] = value
}

// Delete removes path from the store.
func (m *Memory) Delete(path string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.values, path)
}

// Keys lists every stored path in lexical order.
func (m *Memory) Keys() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Snapshot returns a copy of every stored value.
func (m *Memory) Snapshot() map[string]any {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}

	return out
}
