package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/devrev/kvring/internal/config"
	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/integrity"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/model"
	"github.com/devrev/kvring/internal/provision"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinClusterSize is the smallest cluster that keeps every key on
// ReplicationFactor distinct nodes
const MinClusterSize = ring.ReplicationFactor

// Deps holds everything the controller talks to
type Deps struct {
	Config    config.ClusterConfig
	Inventory []ring.NodeID
	Nodes     NodeClient
	Launcher  provision.Launcher
	State     store.StateStore
	Metrics   *metrics.ControllerMetrics
	Logger    *zap.Logger
}

// Controller owns the ring and drives every membership change.
// Operations are serialized on ops; mu guards the fields read by
// GetCluster and the failure reports while an operation is running.
type Controller struct {
	cfg          config.ClusterConfig
	inventory    []ring.NodeID
	nodes        NodeClient
	launcher     provision.Launcher
	state        store.StateStore
	corroborator *integrity.Corroborator
	metrics      *metrics.ControllerMetrics
	logger       *zap.Logger

	ops      sync.Mutex
	recovery *FairLock
	inflight sync.WaitGroup

	mu          sync.RWMutex
	ring        *ring.Ring
	version     uint64 // highest ring version ever published
	running     []ring.NodeID
	lastRemoved *ring.NodeID
	cacheSize   int
	strategy    string
	lastOp      *model.MembershipOperation

	// pick returns a random index in [0, n)
	pick func(n int) int
}

// New creates a controller with an empty cluster
func New(deps Deps) *Controller {
	cfg := deps.Config
	if cfg.DefaultCacheSize <= 0 {
		cfg.DefaultCacheSize = 100
	}
	if cfg.DefaultCacheStrategy == "" {
		cfg.DefaultCacheStrategy = "LRU"
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = 500 * time.Millisecond
	}

	return &Controller{
		cfg:          cfg,
		inventory:    append([]ring.NodeID(nil), deps.Inventory...),
		nodes:        deps.Nodes,
		launcher:     deps.Launcher,
		state:        deps.State,
		corroborator: integrity.NewCorroborator(),
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		recovery:     NewFairLock(),
		ring:         ring.New(),
		cacheSize:    cfg.DefaultCacheSize,
		strategy:     cfg.DefaultCacheStrategy,
		pick:         rand.Intn,
	}
}

// Restore reloads the cluster state saved by a previous controller run
func (c *Controller) Restore(ctx context.Context) error {
	state, err := c.state.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Info("No saved cluster state, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cluster state: %w", err)
	}

	r := ring.NewAt(state.Ring.Version)
	if !state.Ring.IsEmpty() {
		r, err = ring.FromSnapshot(state.Ring)
		if err != nil {
			return kverrors.InvalidSnapshot(err)
		}
	}

	c.mu.Lock()
	c.ring = r
	c.version = max(state.RingVersion, r.Version())
	c.running = append([]ring.NodeID(nil), state.Running...)
	c.lastRemoved = state.LastRemoved
	if state.CacheSize > 0 {
		c.cacheSize = state.CacheSize
	}
	if state.CacheStrategy != "" {
		c.strategy = state.CacheStrategy
	}
	c.lastOp = state.LastOperation
	c.mu.Unlock()

	c.observeRing(r)
	c.logger.Info("Restored cluster state",
		zap.Int("running", len(state.Running)),
		zap.Uint64("ring_version", r.Version()))
	return nil
}

// GetCluster describes the current membership
func (c *Controller) GetCluster() *rpc.ClusterResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp := &rpc.ClusterResponse{
		Ring:    c.ring.Snapshot(),
		Running: append([]ring.NodeID{}, c.running...),
		Idle:    c.idleLocked(),
	}
	if c.lastRemoved != nil {
		resp.LastRemoved = c.lastRemoved.String()
	}
	return resp
}

// Ring returns a snapshot of the current ring
func (c *Controller) Ring() ring.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.Snapshot()
}

// LastOperation returns the most recent membership operation
func (c *Controller) LastOperation() *model.MembershipOperation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastOp == nil {
		return nil
	}
	op := *c.lastOp
	return &op
}

// Ready reports whether the state store is reachable
func (c *Controller) Ready(ctx context.Context) error {
	return c.state.Ping(ctx)
}

// Wait blocks until background failure handling has finished
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// isRunning reports whether node is a running member
func (c *Controller) isRunning(node ring.NodeID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return indexOf(c.running, node) >= 0
}

func (c *Controller) runningNodes() []ring.NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ring.NodeID(nil), c.running...)
}

func (c *Controller) currentRing() *ring.Ring {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.Clone()
}

// commit installs the result of a membership change
func (c *Controller) commit(r *ring.Ring, running []ring.NodeID) {
	c.mu.Lock()
	c.ring = r
	c.running = running
	c.version = max(c.version, r.Version())
	c.mu.Unlock()
	c.observeRing(r)
}

// nextRing builds a ring whose version is above every published one
func (c *Controller) nextRing(ids ...ring.NodeID) *ring.Ring {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ring.NewAt(c.version+1, ids...)
}

func (c *Controller) observeRing(r *ring.Ring) {
	c.metrics.RingSize.Set(float64(r.Size()))
	c.metrics.RingVersion.Set(float64(r.Version()))
}

func (c *Controller) idleLocked() []ring.NodeID {
	idle := make([]ring.NodeID, 0, len(c.inventory))
	for _, id := range c.inventory {
		if indexOf(c.running, id) < 0 {
			idle = append(idle, id)
		}
	}
	return idle
}

// pickIdle chooses a random machine that is neither running nor excluded
func (c *Controller) pickIdle(exclude ...ring.NodeID) (ring.NodeID, error) {
	c.mu.RLock()
	candidates := c.idleLocked()
	c.mu.RUnlock()

	idle := make([]ring.NodeID, 0, len(candidates))
	for _, id := range candidates {
		if indexOf(exclude, id) < 0 {
			idle = append(idle, id)
		}
	}

	if len(idle) == 0 {
		return ring.NodeID{}, kverrors.NoIdleNodes()
	}
	return idle[c.pick(len(idle))], nil
}

// begin records the start of a membership operation
func (c *Controller) begin(opType model.OperationType, node ring.NodeID) *model.MembershipOperation {
	op := &model.MembershipOperation{
		OperationID: uuid.New().String(),
		Type:        opType,
		Node:        node,
		Status:      model.OperationInProgress,
		StartedAt:   time.Now(),
	}
	c.logger.Info("Membership operation started",
		zap.String("operation_id", op.OperationID),
		zap.String("type", string(opType)),
		zap.String("node", node.String()))
	return op
}

// finish completes op, records metrics and persists the cluster state
func (c *Controller) finish(ctx context.Context, op *model.MembershipOperation, err error) {
	now := time.Now()
	op.CompletedAt = &now

	switch {
	case err != nil:
		op.Status = model.OperationFailed
		op.Error = err.Error()
	case op.Partial > 0:
		op.Status = model.OperationDegraded
	default:
		op.Status = model.OperationCompleted
	}

	c.metrics.MembershipOpsTotal.WithLabelValues(string(op.Type), string(op.Status)).Inc()
	c.metrics.MembershipOpDuration.WithLabelValues(string(op.Type)).Observe(now.Sub(op.StartedAt).Seconds())

	fields := []zap.Field{
		zap.String("operation_id", op.OperationID),
		zap.String("type", string(op.Type)),
		zap.String("node", op.Node.String()),
		zap.String("status", string(op.Status)),
		zap.Int("transfers", op.Transfers),
		zap.Int("partial", op.Partial),
		zap.Duration("duration", now.Sub(op.StartedAt)),
	}
	if err != nil {
		c.logger.Error("Membership operation failed", append(fields, zap.Error(err))...)
	} else {
		c.logger.Info("Membership operation completed", fields...)
	}

	c.mu.Lock()
	c.lastOp = op
	c.mu.Unlock()
	c.persist(ctx)
}

// persist saves the cluster state; failures are logged and counted only
func (c *Controller) persist(ctx context.Context) {
	c.mu.RLock()
	state := &model.ClusterState{
		Running:       append([]ring.NodeID(nil), c.running...),
		Ring:          c.ring.Snapshot(),
		RingVersion:   c.version,
		CacheSize:     c.cacheSize,
		CacheStrategy: c.strategy,
		LastOperation: c.lastOp,
		UpdatedAt:     time.Now().UTC(),
	}
	if c.lastRemoved != nil {
		last := *c.lastRemoved
		state.LastRemoved = &last
	}
	c.mu.RUnlock()

	if err := c.state.Save(context.WithoutCancel(ctx), state); err != nil {
		c.metrics.StatePersistFailures.Inc()
		c.logger.Error("Failed to persist cluster state", zap.Error(err))
	}
}

func indexOf(nodes []ring.NodeID, node ring.NodeID) int {
	for i, n := range nodes {
		if n == node {
			return i
		}
	}
	return -1
}

func without(nodes []ring.NodeID, node ring.NodeID) []ring.NodeID {
	out := make([]ring.NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n != node {
			out = append(out, n)
		}
	}
	return out
}
