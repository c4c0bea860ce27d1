// Package memory provides an in-memory run cache.
package memory

import (
	"context"
	"sync"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/storage"
)

// MemoryStorage implements storage.RunCache with a map of serialized runs.
type MemoryStorage struct {
	mu   sync.RWMutex
	runs map[storage.RunKey][]byte
}

// NewMemoryStorage creates a new in-memory cache.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs: make(map[storage.RunKey][]byte),
	}
}

// SaveRun stores a copy of run.
func (m *MemoryStorage) SaveRun(ctx context.Context, run *buildtrace.WorkflowRun) error {
	if err := storage.ValidateRun(run); err != nil {
		return err
	}
	data, err := storage.Serialize(run)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[storage.KeyOf(run)] = data
	return nil
}

// GetRun returns a copy of the stored run.
func (m *MemoryStorage) GetRun(ctx context.Context, key storage.RunKey) (*buildtrace.WorkflowRun, error) {
	m.mu.RLock()
	data, exists := m.runs[key]
	m.mu.RUnlock()

	if !exists {
		return nil, storage.RunNotFound(key)
	}

	var run buildtrace.WorkflowRun
	if err := storage.Deserialize(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteRun removes a run.
func (m *MemoryStorage) DeleteRun(ctx context.Context, key storage.RunKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[key]; !exists {
		return storage.RunNotFound(key)
	}
	delete(m.runs, key)
	return nil
}

// Len returns the number of cached run attempts.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// Close is a no-op for in-memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}
