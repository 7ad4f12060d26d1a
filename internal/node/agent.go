package node

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/heartbeat"
	"github.com/devrev/kvring/internal/integrity"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/replication"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"github.com/devrev/kvring/internal/util/workerpool"
	"github.com/devrev/kvring/internal/validation"
	"go.uber.org/zap"
)

// Peers is how a node reaches other nodes and subscribed clients
type Peers interface {
	Replicate(ctx context.Context, to ring.NodeID, req *rpc.ReplicateRequest) error
	Ingest(ctx context.Context, to ring.NodeID, entries []rpc.Entry) error
	Heartbeat(ctx context.Context, to ring.NodeID, req *rpc.HeartbeatRequest) error
	Notify(ctx context.Context, subscriber string, n *rpc.Notification) error
	ConfirmWrite(ctx context.Context, client string, req *rpc.ConfirmWriteRequest) (*rpc.ConfirmWriteResponse, error)
}

// ControllerLink carries node-originated events to the controller
type ControllerLink interface {
	ReportDead(ctx context.Context, suspect ring.NodeID) error
	ReportCompromised(ctx context.Context, suspect ring.NodeID) error
	BroadcastUnsubscribe(ctx context.Context, key, subscriber string) error
}

// Options configures an Agent
type Options struct {
	Self       ring.NodeID
	Engine     storage.Engine
	Peers      Peers
	Controller ControllerLink
	Config     *config.NodeConfig
	Metrics    *metrics.NodeMetrics
	Logger     *zap.Logger
	// OnShutdown terminates the hosting process
	OnShutdown func()
}

// Agent is the per-node context shared by every request handler
type Agent struct {
	self ring.NodeID
	cfg  *config.NodeConfig

	mu          sync.RWMutex
	ring        *ring.Ring
	initialized bool
	started     bool
	base        storage.Engine
	store       storage.Engine

	gate       *WriteGate
	subs       *Subscriptions
	validator  *validation.Validator
	peers      Peers
	controller ControllerLink
	replicator *replication.Replicator
	callbacks  *workerpool.WorkerPool
	heartbeat  *heartbeat.Manager
	checker    *integrity.Checker

	metrics      *metrics.NodeMetrics
	logger       *zap.Logger
	onShutdown   func()
	shutdownOnce sync.Once
}

// NewAgent creates an uninitialized agent; it serves nothing until the
// controller sends init and start
func NewAgent(opts Options) *Agent {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultNodeConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("node", opts.Self.String()))

	a := &Agent{
		self:       opts.Self,
		cfg:        cfg,
		base:       opts.Engine,
		store:      opts.Engine,
		gate:       NewWriteGate(),
		subs:       NewSubscriptions(),
		validator:  validation.NewValidator(),
		peers:      opts.Peers,
		controller: opts.Controller,
		metrics:    opts.Metrics,
		logger:     logger,
		onShutdown: opts.OnShutdown,
	}

	a.replicator = replication.New(opts.Peers, replication.Config{
		Workers:   cfg.Replication.Workers,
		QueueSize: cfg.Replication.QueueSize,
		Timeout:   cfg.Replication.Timeout,
	}, logger, opts.Metrics)

	a.callbacks = workerpool.NewWorkerPool(workerpool.Config{
		Name:       "callbacks",
		MaxWorkers: cfg.Replication.Workers,
		QueueSize:  cfg.Replication.QueueSize,
		Logger:     logger,
	})

	a.heartbeat = heartbeat.NewManager(opts.Self, heartbeat.Deps{
		Prober:        opts.Peers,
		Reporter:      opts.Controller,
		Subscriptions: a.subs.Snapshot,
		Config: heartbeat.Config{
			Interval:         cfg.Heartbeat.Interval,
			Timeout:          cfg.Heartbeat.Timeout,
			FailureThreshold: cfg.Heartbeat.FailureThreshold,
		},
		Logger:  logger,
		Metrics: opts.Metrics,
	})

	a.checker = integrity.NewChecker(opts.Controller, opts.Peers, cfg.Integrity.Timeout, logger, opts.Metrics)

	return a
}

// Self returns the identity of this node
func (a *Agent) Self() ring.NodeID {
	return a.self
}

// Init installs the ring and the read cache. The node stays stopped until
// Start. Init always replaces the current ring regardless of version.
func (a *Agent) Init(cacheSize int, strategy string, snap ring.Snapshot) error {
	if strategy == "" {
		strategy = storage.StrategyLRU
	}
	if !config.IsValidCacheStrategy(strategy) {
		return errors.InvalidArgument("unknown cache strategy "+strategy, nil)
	}
	r, err := ring.FromSnapshot(snap)
	if err != nil {
		return errors.InvalidSnapshot(err)
	}

	store := a.base
	if cacheSize > 0 {
		cached, err := storage.NewCachedEngine(a.base, cacheSize, strategy)
		if err != nil {
			return errors.InvalidArgument("invalid cache configuration", err)
		}
		store = cached
	}

	a.mu.Lock()
	a.ring = r
	a.store = store
	a.initialized = true
	a.started = false
	a.mu.Unlock()

	a.logger.Info("Node initialized",
		zap.Int("cache_size", cacheSize),
		zap.String("strategy", strategy),
		zap.Int("ring_size", r.Size()),
		zap.Uint64("ring_version", r.Version()))

	a.onRingChanged(r)
	return nil
}

// Start begins serving client requests
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return errors.NotInitialized()
	}
	a.started = true
	a.logger.Info("Node started")
	return nil
}

// Stop refuses client requests until the next Start
func (a *Agent) Stop() {
	a.mu.Lock()
	a.started = false
	a.mu.Unlock()
	a.logger.Info("Node stopped")
}

// Shutdown stops background work and terminates the process
func (a *Agent) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info("Node shutting down")
		a.Stop()
		a.heartbeat.Stop()

		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := a.replicator.Stop(timeout); err != nil {
			a.logger.Warn("Replication did not drain", zap.Error(err))
		}
		if err := a.callbacks.Stop(timeout); err != nil {
			a.logger.Warn("Callbacks did not drain", zap.Error(err))
		}

		if a.onShutdown != nil {
			go a.onShutdown()
		}
	})
}

// LockWrite refuses new writes and waits for admitted ones to commit
func (a *Agent) LockWrite() {
	a.gate.Lock()
	a.logger.Debug("Writes locked")
}

// UnlockWrite admits writes again
func (a *Agent) UnlockWrite() {
	a.gate.Unlock()
	a.logger.Debug("Writes unlocked")
}

// ApplyRing installs snap unless it is older than the current ring.
// It reports whether the snapshot was applied.
func (a *Agent) ApplyRing(snap ring.Snapshot) (bool, error) {
	r, err := ring.FromSnapshot(snap)
	if err != nil {
		return false, errors.InvalidSnapshot(err)
	}

	a.mu.Lock()
	if a.ring != nil && r.Version() < a.ring.Version() {
		current := a.ring.Version()
		a.mu.Unlock()
		a.logger.Debug("Ignoring stale ring",
			zap.Uint64("version", r.Version()),
			zap.Uint64("current", current))
		return false, nil
	}
	a.ring = r
	initialized := a.initialized
	a.mu.Unlock()

	a.logger.Info("Ring applied",
		zap.Int("ring_size", r.Size()),
		zap.Uint64("ring_version", r.Version()))

	if initialized {
		a.onRingChanged(r)
	}
	return true, nil
}

func (a *Agent) onRingChanged(r *ring.Ring) {
	if a.metrics != nil {
		a.metrics.RingVersion.Set(float64(r.Version()))
	}
	successor, ok := r.Successor(a.self)
	a.heartbeat.Retarget(successor, ok)
}

// DeleteAllData wipes local storage
func (a *Agent) DeleteAllData() error {
	a.mu.RLock()
	store := a.store
	a.mu.RUnlock()

	if err := store.Clear(); err != nil {
		return errors.InternalError("failed to clear storage", err)
	}
	a.logger.Info("Local data cleared")
	return nil
}

// Health describes the node lifecycle state
func (a *Agent) Health() *rpc.HealthResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()

	resp := &rpc.HealthResponse{
		Node:        a.self,
		Initialized: a.initialized,
		Started:     a.started,
		WriteLocked: a.gate.Locked(),
	}
	if a.ring != nil {
		resp.RingVersion = a.ring.Version()
	}
	return resp
}

// Ready is a readiness probe: the node has a ring and serves clients
func (a *Agent) Ready(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return errors.NotInitialized()
	}
	return nil
}

// Ring returns the ring the node currently acts on
func (a *Agent) Ring() *ring.Ring {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ring
}

// view is a consistent read of the state a request needs
type view struct {
	ring    *ring.Ring
	store   storage.Engine
	started bool
}

func (a *Agent) view() view {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return view{ring: a.ring, store: a.store, started: a.started}
}

func (v view) snapshot() *ring.Snapshot {
	if v.ring == nil {
		return nil
	}
	snap := v.ring.Snapshot()
	return &snap
}
