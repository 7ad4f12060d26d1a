package store

import (
	"context"
	"sync"

	"github.com/devrev/kvring/internal/model"
)

// MemoryStateStore keeps state in process memory. State is lost on
// restart; the stored copy is serialized so callers cannot alias it.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStateStore creates an empty in-memory store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load returns the saved state
func (s *MemoryStateStore) Load(ctx context.Context) (*model.ClusterState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, ErrNotFound
	}
	return decodeState(s.data)
}

// Save replaces the saved state
func (s *MemoryStateStore) Save(ctx context.Context, state *model.ClusterState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Ping always succeeds
func (s *MemoryStateStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStateStore) Close() error {
	return nil
}
