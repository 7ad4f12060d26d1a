package heartbeat

import (
	"sync"
	"time"

	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/ring"
	"go.uber.org/zap"
)

// Deps are shared by every monitor a manager starts
type Deps struct {
	Prober        Prober
	Reporter      DeathReporter
	Subscriptions func() map[string][]string
	Config        Config
	Logger        *zap.Logger
	Metrics       *metrics.NodeMetrics
}

// Manager keeps one monitor pointed at the node's current successor
type Manager struct {
	self ring.NodeID
	deps Deps

	mu      sync.Mutex
	current *Monitor
}

// NewManager creates a manager with no active monitor
func NewManager(self ring.NodeID, deps Deps) *Manager {
	if deps.Config.Interval <= 0 {
		deps.Config.Interval = 5 * time.Second
	}
	if deps.Config.Timeout <= 0 {
		deps.Config.Timeout = deps.Config.Interval
	}
	if deps.Config.FailureThreshold <= 0 {
		deps.Config.FailureThreshold = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{self: self, deps: deps}
}

// Retarget points the manager at successor. The running monitor is kept
// when it already watches successor and has not declared it dead.
func (m *Manager) Retarget(successor ring.NodeID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ok || successor == m.self {
		m.stopLocked()
		return
	}
	if m.current != nil && m.current.Target() == successor {
		switch m.current.State() {
		case StateConnected, StateAwaitingReply:
			return
		}
	}

	m.stopLocked()
	m.current = newMonitor(m.self, successor, m.deps)
	go m.current.run()

	m.deps.Logger.Info("Heartbeat monitor started", zap.String("successor", successor.String()))
}

// Current returns the active monitor, if any
func (m *Manager) Current() *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop ends the active monitor
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.current == nil {
		return
	}
	m.current.Stop()
	m.current = nil
}
