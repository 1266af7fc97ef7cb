package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is the map-backed Store used in tests and when no backend is
// configured.
type Memory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]json.RawMessage)}
}

func (m *Memory) Load(_ context.Context, key string, dest any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.values[Namespaced(key)]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Save(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values[Namespaced(key)] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
