package testing

import (
	"context"
	"sync"

	"github.com/aristath/tierfolio/internal/domain"
)

// MockSnapshotProvider is a mock implementation of domain.SnapshotProvider for testing
type MockSnapshotProvider struct {
	mu       sync.RWMutex
	snapshot *domain.Snapshot
	err      error
	calls    int
}

// NewMockSnapshotProvider creates a provider returning snapshot
func NewMockSnapshotProvider(snapshot *domain.Snapshot) *MockSnapshotProvider {
	return &MockSnapshotProvider{snapshot: snapshot}
}

// SetSnapshot sets the snapshot to return
func (m *MockSnapshotProvider) SetSnapshot(snapshot *domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot
}

// SetError sets the error to return
func (m *MockSnapshotProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times LoadSnapshot was invoked
func (m *MockSnapshotProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// LoadSnapshot returns a clone of the configured snapshot
func (m *MockSnapshotProvider) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.snapshot == nil {
		return nil, nil
	}
	return m.snapshot.Clone(), nil
}

// MockArchiver is a mock implementation of domain.ArtifactArchiver that keeps objects in memory
type MockArchiver struct {
	mu      sync.RWMutex
	objects map[string][]byte
	err     error
}

// NewMockArchiver creates an empty in-memory archiver
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{objects: make(map[string][]byte)}
}

// SetError sets the error to return
func (m *MockArchiver) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Archive stores a copy of data under key
func (m *MockArchiver) Archive(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// Keys returns the archived object keys
func (m *MockArchiver) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Object returns the archived bytes for key
func (m *MockArchiver) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
