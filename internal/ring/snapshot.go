package ring

import (
	"errors"
	"fmt"
)

// ErrInvalidSnapshot is returned when a snapshot does not describe a valid ring
var ErrInvalidSnapshot = errors.New("invalid ring snapshot")

// Snapshot is the serialized form of a ring pushed to nodes and clients
type Snapshot struct {
	Version uint64          `json:"version"`
	Entries []SnapshotEntry `json:"entries"`
}

// SnapshotEntry describes one member and its ranges
type SnapshotEntry struct {
	Node      NodeID `json:"node"`
	Start     string `json:"start"`
	End       string `json:"end"`
	ReadStart string `json:"read_start"`
}

// Snapshot returns the serialized form of the ring in ring order
func (r *Ring) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Version: r.version,
		Entries: make([]SnapshotEntry, 0, len(r.hashes)),
	}
	for _, h := range r.hashes {
		id := r.nodes[h]
		rng := r.ranges[id]
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Node:      id,
			Start:     rng.Start,
			End:       rng.End,
			ReadStart: rng.ReadStart,
		})
	}
	return snap
}

// IsEmpty reports whether the snapshot has no members
func (s Snapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// FromSnapshot rebuilds a ring, rejecting snapshots whose ranges do not
// match the positions of their members
func FromSnapshot(s Snapshot) (*Ring, error) {
	ids := make([]NodeID, 0, len(s.Entries))
	seen := make(map[NodeID]bool, len(s.Entries))
	for _, e := range s.Entries {
		if e.Node.IsZero() {
			return nil, fmt.Errorf("%w: entry without node", ErrInvalidSnapshot)
		}
		if seen[e.Node] {
			return nil, fmt.Errorf("%w: duplicate node %s", ErrInvalidSnapshot, e.Node)
		}
		seen[e.Node] = true
		ids = append(ids, e.Node)
	}

	r := NewAt(s.Version, ids...)
	if r.Size() != len(ids) {
		return nil, fmt.Errorf("%w: colliding node positions", ErrInvalidSnapshot)
	}

	for _, e := range s.Entries {
		rng, _ := r.Range(e.Node)
		if rng.Start != e.Start || rng.End != e.End || rng.ReadStart != e.ReadStart {
			return nil, fmt.Errorf("%w: ranges of %s do not match ring positions", ErrInvalidSnapshot, e.Node)
		}
	}

	return r, nil
}
