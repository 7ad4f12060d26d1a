package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
)

// State is the lifecycle of one monitor
type State int32

const (
	StateConnected State = iota
	StateAwaitingReply
	StateDead
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateDead:
		return "dead"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Prober sends one heartbeat to a peer
type Prober interface {
	Heartbeat(ctx context.Context, to ring.NodeID, req *rpc.HeartbeatRequest) error
}

// DeathReporter tells the controller a peer stopped answering
type DeathReporter interface {
	ReportDead(ctx context.Context, suspect ring.NodeID) error
}

// Config holds heartbeat timing
type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// Monitor watches a single successor. Once it declares the target dead it
// reports exactly once and exits; a new monitor is needed to watch again.
// Done closes before the report is sent; Stop never waits on the controller.
type Monitor struct {
	self     ring.NodeID
	target   ring.NodeID
	prober   Prober
	reporter DeathReporter
	subs     func() map[string][]string
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.NodeMetrics

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newMonitor(self, target ring.NodeID, deps Deps) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		self:     self,
		target:   target,
		prober:   deps.Prober,
		reporter: deps.Reporter,
		subs:     deps.Subscriptions,
		cfg:      deps.Config,
		logger:   deps.Logger.With(zap.String("target", target.String())),
		metrics:  deps.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.state.Store(int32(StateConnected))
	return m
}

// Target returns the node being watched
func (m *Monitor) Target() ring.NodeID {
	return m.target
}

// State returns the current monitor state
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Done is closed when the monitor exits
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-m.ctx.Done():
			m.state.Store(int32(StateStopped))
			return
		case <-ticker.C:
		}

		m.state.Store(int32(StateAwaitingReply))
		err := m.probe()
		if m.ctx.Err() != nil {
			m.state.Store(int32(StateStopped))
			return
		}
		if err == nil {
			failures = 0
			m.state.Store(int32(StateConnected))
			m.observe("ok")
			continue
		}

		failures++
		m.observe("failed")
		m.logger.Debug("Heartbeat failed", zap.Int("failures", failures), zap.Error(err))
		if failures < m.cfg.FailureThreshold {
			continue
		}

		m.state.Store(int32(StateDead))
		go m.report()
		return
	}
}

func (m *Monitor) probe() error {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	defer cancel()

	req := &rpc.HeartbeatRequest{From: m.self}
	if m.subs != nil {
		req.Subscriptions = m.subs()
	}
	return m.prober.Heartbeat(ctx, m.target, req)
}

func (m *Monitor) report() {
	m.logger.Warn("Successor unresponsive, reporting to controller")

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	if err := m.reporter.ReportDead(ctx, m.target); err != nil {
		m.logger.Error("Failed to report dead node", zap.Error(err))
	}
}

func (m *Monitor) observe(result string) {
	if m.metrics != nil {
		m.metrics.HeartbeatTotal.WithLabelValues(result).Inc()
	}
}

// Stop ends the monitor and waits for it to exit
func (m *Monitor) Stop() {
	m.once.Do(m.cancel)
	<-m.done
}
