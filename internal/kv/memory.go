package kv

import (
	"context"
	"sync"
)

// MemoryStore is a Store held in process memory. Failures can be injected
// to exercise the callers' fallback paths.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// FailGets makes every subsequent Get fail with err. nil restores reads.
func (m *MemoryStore) FailGets(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

// FailSets makes every subsequent Set and Delete fail with err.
func (m *MemoryStore) FailSets(err error) {
	m.mu.Lock()
	m.setErr = err
	m.mu.Unlock()
}

// Writes returns the number of successful Set calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, unavailable("get", key, m.getErr)
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return unavailable("set", key, m.setErr)
	}
	m.data[key] = value
	m.writes++
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return unavailable("delete", key, m.setErr)
	}
	delete(m.data, key)
	return nil
}
