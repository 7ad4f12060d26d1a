package ring

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ReplicationFactor is the number of distinct nodes holding each key
const ReplicationFactor = 3

var (
	// ErrNodeExists is returned when adding a node already on the ring
	ErrNodeExists = errors.New("node already on ring")
	// ErrNodeNotFound is returned when a node is not on the ring
	ErrNodeNotFound = errors.New("node not on ring")
)

// Obligation is a data transfer required by a membership change.
// After AddNode, Holder must send Range to the joining node.
// After RemoveNode, Holder must receive Range from a live replica.
type Obligation struct {
	Holder NodeID   `json:"holder"`
	Range  Interval `json:"range"`
}

// Ring is the metadata ring: every member's position and hash ranges.
// Ranges are recomputed on every membership change so that the primary
// ranges always partition the hash space.
type Ring struct {
	hashes  []string          // sorted end hashes
	nodes   map[string]NodeID // end hash -> node
	ranges  map[NodeID]HashRange
	version uint64
	mu      sync.RWMutex
}

// New creates a ring containing the given nodes
func New(ids ...NodeID) *Ring {
	return NewAt(0, ids...)
}

// NewAt creates a ring containing the given nodes at the given version.
// A rebuilt ring must start above every version already published so
// that nodes and clients holding the old ring accept it.
func NewAt(version uint64, ids ...NodeID) *Ring {
	r := &Ring{
		hashes:  make([]string, 0, len(ids)),
		nodes:   make(map[string]NodeID, len(ids)),
		ranges:  make(map[NodeID]HashRange, len(ids)),
		version: version,
	}
	for _, id := range ids {
		h := id.Hash()
		if _, exists := r.nodes[h]; exists {
			continue
		}
		r.insert(h, id)
	}
	r.recompute()
	return r
}

// Size returns the number of nodes on the ring
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hashes)
}

// Version returns the ring version, bumped on every membership change
func (r *Ring) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Contains reports whether id is a ring member
func (r *Ring) Contains(id NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ranges[id]
	return ok
}

// Range returns the hash range of a member
func (r *Ring) Range(id NodeID) (HashRange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rng, ok := r.ranges[id]
	return rng, ok
}

// Nodes returns the members in ring order
func (r *Ring) Nodes() []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeID, 0, len(r.hashes))
	for _, h := range r.hashes {
		out = append(out, r.nodes[h])
	}
	return out
}

// Coordinator returns the node whose primary range contains hash
func (r *Ring) Coordinator(hash string) (NodeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return NodeID{}, false
	}
	return r.nodes[r.hashes[r.ceiling(hash)]], true
}

// ReplicaSet returns the coordinator of hash followed by its successors,
// min(ReplicationFactor, size) distinct nodes
func (r *Ring) ReplicaSet(hash string) []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return nil
	}
	return r.walk(r.ceiling(hash), ReplicationFactor)
}

// BackupSet returns the replica set of hash without its coordinator
func (r *Ring) BackupSet(hash string) []NodeID {
	replicas := r.ReplicaSet(hash)
	if len(replicas) <= 1 {
		return nil
	}
	return replicas[1:]
}

// Successor returns the member following id on the ring
func (r *Ring) Successor(id NodeID) (NodeID, bool) {
	return r.neighbour(id, 1)
}

// Predecessor returns the member preceding id on the ring
func (r *Ring) Predecessor(id NodeID) (NodeID, bool) {
	return r.neighbour(id, -1)
}

func (r *Ring) neighbour(id NodeID, step int) (NodeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.hashes)
	idx, ok := r.indexOf(id.Hash())
	if !ok || n < 2 {
		return NodeID{}, false
	}
	return r.nodes[r.hashes[(idx+step+n)%n]], true
}

// AddNode inserts id and returns the transfers that hand the new node
// its data. Each obligation names a successor whose read window shrank
// and the arc it gives up to the new node. While the ring holds no more
// than ReplicationFactor members every node stores everything, so the
// new node receives a full copy from its successor.
func (r *Ring) AddNode(id NodeID) ([]Obligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := id.Hash()
	if _, exists := r.nodes[h]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, id)
	}

	before := r.copyRanges()
	r.insert(h, id)
	r.recompute()
	r.version++

	size := len(r.hashes)
	if size == 1 {
		return nil, nil
	}

	idx, _ := r.indexOf(h)
	if size <= ReplicationFactor {
		succ := r.nodes[r.hashes[(idx+1)%size]]
		return []Obligation{{Holder: succ, Range: Interval{Start: h, End: h}}}, nil
	}

	var obligations []Obligation
	for _, s := range r.walk(idx+1, ReplicationFactor) {
		oldStart, newStart := before[s].ReadStart, r.ranges[s].ReadStart
		if oldStart == newStart {
			continue
		}
		obligations = append(obligations, Obligation{
			Holder: s,
			Range:  Interval{Start: oldStart, End: newStart},
		})
	}
	return obligations, nil
}

// RemoveNode deletes id and returns the transfers that restore the
// replication factor. Each obligation names a survivor whose read window
// grew and the arc it must now receive. A ring that held no more than
// ReplicationFactor members before the removal needs no transfers.
func (r *Ring) RemoveNode(id NodeID) ([]Obligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := id.Hash()
	idx, ok := r.indexOf(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	before := r.copyRanges()
	oldSize := len(r.hashes)

	r.hashes = append(r.hashes[:idx], r.hashes[idx+1:]...)
	delete(r.nodes, h)
	delete(r.ranges, id)
	r.recompute()
	r.version++

	if oldSize <= ReplicationFactor {
		return nil, nil
	}

	var obligations []Obligation
	for _, s := range r.walk(r.ceiling(h), ReplicationFactor) {
		oldStart, newStart := before[s].ReadStart, r.ranges[s].ReadStart
		if oldStart == newStart {
			continue
		}
		obligations = append(obligations, Obligation{
			Holder: s,
			Range:  Interval{Start: newStart, End: oldStart},
		})
	}
	return obligations, nil
}

// Clone returns an independent copy of the ring
func (r *Ring) Clone() *Ring {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Ring{
		hashes:  append([]string(nil), r.hashes...),
		nodes:   make(map[string]NodeID, len(r.nodes)),
		ranges:  r.copyRanges(),
		version: r.version,
	}
	for h, id := range r.nodes {
		c.nodes[h] = id
	}
	return c
}

// insert places h in sorted position; callers hold the write lock
func (r *Ring) insert(h string, id NodeID) {
	idx := sort.SearchStrings(r.hashes, h)
	r.hashes = append(r.hashes, "")
	copy(r.hashes[idx+1:], r.hashes[idx:])
	r.hashes[idx] = h
	r.nodes[h] = id
}

// recompute rebuilds every range from the sorted positions. A node's
// read window starts at the end of the node ReplicationFactor places
// before it, or covers the whole ring when there are not enough members.
func (r *Ring) recompute() {
	n := len(r.hashes)
	for i, h := range r.hashes {
		rng := HashRange{
			Start:     r.hashes[(i-1+n)%n],
			End:       h,
			ReadStart: h,
		}
		if n > ReplicationFactor {
			rng.ReadStart = r.hashes[(i-ReplicationFactor+n)%n]
		}
		r.ranges[r.nodes[h]] = rng
	}
}

// ceiling returns the index of the first end hash >= hash, wrapping to 0
func (r *Ring) ceiling(hash string) int {
	idx := sort.SearchStrings(r.hashes, hash)
	if idx >= len(r.hashes) {
		idx = 0
	}
	return idx
}

func (r *Ring) indexOf(h string) (int, bool) {
	idx := sort.SearchStrings(r.hashes, h)
	if idx < len(r.hashes) && r.hashes[idx] == h {
		return idx, true
	}
	return 0, false
}

// walk collects up to count distinct nodes starting at position from
func (r *Ring) walk(from, count int) []NodeID {
	n := len(r.hashes)
	if count > n {
		count = n
	}
	out := make([]NodeID, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, r.nodes[r.hashes[(from+i)%n]])
	}
	return out
}

func (r *Ring) copyRanges() map[NodeID]HashRange {
	out := make(map[NodeID]HashRange, len(r.ranges))
	for id, rng := range r.ranges {
		out[id] = rng
	}
	return out
}
