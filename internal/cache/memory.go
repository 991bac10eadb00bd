package cache

import (
	"sort"
	"sync"
)

// Memory is an in-memory Store. It persists nothing and is meant for tests
// and dry runs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string

	// GetErr and SetErr, when set, are returned by every Get, or by every
	// Set and Delete
	GetErr error
	SetErr error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return "", false, m.GetErr
	}

	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}

	m.entries[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}

	delete(m.entries, key)
	return nil
}

// Keys returns all keys in sorted order
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
