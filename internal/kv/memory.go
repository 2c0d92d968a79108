package kv

import (
	"slices"
	"sync"
)

// MemoryMedium keeps values in process memory. Nothing survives Close.
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryMedium returns an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{values: make(map[string][]byte)}
}

func (m *MemoryMedium) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (m *MemoryMedium) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = slices.Clone(value)
	return nil
}

func (m *MemoryMedium) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryMedium) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	return nil
}
