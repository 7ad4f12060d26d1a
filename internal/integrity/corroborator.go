package integrity

import (
	"sync"

	"github.com/devrev/kvring/internal/ring"
)

// Verdict is the outcome of recording one compromise report
type Verdict int

const (
	// VerdictFirstReport means the suspect had no pending accusation
	VerdictFirstReport Verdict = iota
	// VerdictDuplicate means the same reporter accused the suspect again
	VerdictDuplicate
	// VerdictCorroborated means a second, distinct reporter agreed
	VerdictCorroborated
)

func (v Verdict) String() string {
	switch v {
	case VerdictFirstReport:
		return "first_report"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictCorroborated:
		return "corroborated"
	default:
		return "unknown"
	}
}

// Corroborator requires two distinct witnesses before a node is treated
// as compromised
type Corroborator struct {
	mu      sync.Mutex
	pending map[ring.NodeID]ring.NodeID
}

// NewCorroborator creates an empty corroborator
func NewCorroborator() *Corroborator {
	return &Corroborator{pending: make(map[ring.NodeID]ring.NodeID)}
}

// Report records that reporter accused suspect. A corroborated suspect
// is cleared so a later accusation starts over.
func (c *Corroborator) Report(suspect, reporter ring.NodeID) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	first, ok := c.pending[suspect]
	switch {
	case !ok:
		c.pending[suspect] = reporter
		return VerdictFirstReport
	case first == reporter:
		return VerdictDuplicate
	default:
		delete(c.pending, suspect)
		return VerdictCorroborated
	}
}

// Forget drops any pending accusation against suspect
func (c *Corroborator) Forget(suspect ring.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, suspect)
}

// Pending returns suspects with a single accusation and their accuser
func (c *Corroborator) Pending() map[ring.NodeID]ring.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[ring.NodeID]ring.NodeID, len(c.pending))
	for k, v := range c.pending {
		out[k] = v
	}
	return out
}
