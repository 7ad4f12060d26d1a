package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devrev/kvring/internal/model"
)

// ErrNotFound is returned when no state has been saved yet
var ErrNotFound = errors.New("not found")

// StateStore persists the controller's cluster state across restarts
type StateStore interface {
	// Load returns the saved state or ErrNotFound
	Load(ctx context.Context) (*model.ClusterState, error)
	// Save replaces the saved state
	Save(ctx context.Context, state *model.ClusterState) error
	Ping(ctx context.Context) error
	Close() error
}

func encodeState(state *model.ClusterState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cluster state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*model.ClusterState, error) {
	var state model.ClusterState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cluster state: %w", err)
	}
	return &state, nil
}
