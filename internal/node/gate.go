package node

import "sync"

// WriteGate blocks client writes while the controller moves data off a
// node. Lock waits for writes already admitted to commit, so a transfer
// started after Lock sees every acknowledged write.
type WriteGate struct {
	mu       sync.Mutex
	drained  *sync.Cond
	locked   bool
	inflight int
}

// NewWriteGate creates an unlocked gate
func NewWriteGate() *WriteGate {
	g := &WriteGate{}
	g.drained = sync.NewCond(&g.mu)
	return g
}

// TryEnter admits one write unless the gate is locked
func (g *WriteGate) TryEnter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return false
	}
	g.inflight++
	return true
}

// Exit releases a write admitted by TryEnter
func (g *WriteGate) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight--
	if g.inflight == 0 {
		g.drained.Broadcast()
	}
}

// Lock refuses new writes and waits for admitted ones to finish
func (g *WriteGate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = true
	for g.inflight > 0 {
		g.drained.Wait()
	}
}

// Unlock admits writes again
func (g *WriteGate) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
}

// Locked reports whether writes are refused
func (g *WriteGate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}
