package handler

import (
	"context"

	"github.com/devrev/kvring/internal/node"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
)

// NodeHandler implements the gRPC node agent service
type NodeHandler struct {
	agent  *node.Agent
	logger *zap.Logger
	rpc.UnimplementedNodeAgentServer
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(agent *node.Agent, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{
		agent:  agent,
		logger: logger,
	}
}

// Init handles init commands from the controller
func (h *NodeHandler) Init(ctx context.Context, req *rpc.InitRequest) (*rpc.Ack, error) {
	if err := h.agent.Init(req.CacheSize, req.Strategy, req.Ring); err != nil {
		h.logger.Warn("Init rejected", zap.Error(err))
		return nil, err
	}
	return &rpc.Ack{Message: "initialized"}, nil
}

// Start handles start commands
func (h *NodeHandler) Start(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := h.agent.Start(); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "started"}, nil
}

// Stop handles stop commands
func (h *NodeHandler) Stop(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	h.agent.Stop()
	return &rpc.Ack{Message: "stopped"}, nil
}

// Shutdown handles shutdown commands; the process exits after replying
func (h *NodeHandler) Shutdown(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	h.agent.Shutdown()
	return &rpc.Ack{Message: "shutting down"}, nil
}

// LockWrite handles write-lock commands
func (h *NodeHandler) LockWrite(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	h.agent.LockWrite()
	return &rpc.Ack{Message: "locked"}, nil
}

// UnlockWrite handles write-unlock commands
func (h *NodeHandler) UnlockWrite(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	h.agent.UnlockWrite()
	return &rpc.Ack{Message: "unlocked"}, nil
}

// MoveData handles move commands
func (h *NodeHandler) MoveData(ctx context.Context, req *rpc.TransferRequest) (*rpc.TransferResponse, error) {
	keys, err := h.agent.MoveData(ctx, req.Destination, req.Range)
	if err != nil {
		return nil, err
	}
	return &rpc.TransferResponse{Keys: keys}, nil
}

// CopyData handles copy commands
func (h *NodeHandler) CopyData(ctx context.Context, req *rpc.TransferRequest) (*rpc.TransferResponse, error) {
	keys, err := h.agent.CopyData(ctx, req.Destination, req.Range)
	if err != nil {
		return nil, err
	}
	return &rpc.TransferResponse{Keys: keys}, nil
}

// ApplyRing handles ring updates
func (h *NodeHandler) ApplyRing(ctx context.Context, req *rpc.ApplyRingRequest) (*rpc.Ack, error) {
	applied, err := h.agent.ApplyRing(req.Ring)
	if err != nil {
		h.logger.Warn("Ring rejected", zap.Error(err))
		return nil, err
	}
	if !applied {
		return &rpc.Ack{Message: "stale"}, nil
	}
	return &rpc.Ack{Message: "applied"}, nil
}

// DeleteAllData handles storage wipe commands
func (h *NodeHandler) DeleteAllData(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := h.agent.DeleteAllData(); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "cleared"}, nil
}

// HealthCheck reports node state
func (h *NodeHandler) HealthCheck(ctx context.Context, _ *rpc.Empty) (*rpc.HealthResponse, error) {
	return h.agent.Health(), nil
}

// Unsubscribe removes a subscription on behalf of the controller
func (h *NodeHandler) Unsubscribe(ctx context.Context, req *rpc.SubscriptionRequest) (*rpc.Ack, error) {
	h.agent.Unsubscribe(req.Key, req.Subscriber)
	return &rpc.Ack{}, nil
}

// Put handles client writes and deletes
func (h *NodeHandler) Put(ctx context.Context, req *rpc.PutRequest) (*rpc.KVResponse, error) {
	return h.agent.Put(ctx, req.Key, req.Value, req.Client), nil
}

// Get handles client reads
func (h *NodeHandler) Get(ctx context.Context, req *rpc.GetRequest) (*rpc.KVResponse, error) {
	return h.agent.Get(ctx, req.Key), nil
}

// Subscribe handles client subscriptions
func (h *NodeHandler) Subscribe(ctx context.Context, req *rpc.SubscriptionRequest) (*rpc.KVResponse, error) {
	return h.agent.Subscribe(ctx, req.Key, req.Subscriber), nil
}

// ClientUnsubscribe handles client unsubscribes
func (h *NodeHandler) ClientUnsubscribe(ctx context.Context, req *rpc.SubscriptionRequest) (*rpc.Ack, error) {
	if err := h.agent.ClientUnsubscribe(ctx, req.Key, req.Subscriber); err != nil {
		h.logger.Warn("Unsubscribe forwarding failed",
			zap.String("key", req.Key),
			zap.String("subscriber", req.Subscriber),
			zap.Error(err))
		return nil, err
	}
	return &rpc.Ack{}, nil
}

// Replicate handles writes forwarded by a coordinator
func (h *NodeHandler) Replicate(ctx context.Context, req *rpc.ReplicateRequest) (*rpc.Ack, error) {
	if err := h.agent.Replicate(ctx, req); err != nil {
		h.logger.Error("Replicated write failed", zap.String("key", req.Key), zap.Error(err))
		return nil, err
	}
	return &rpc.Ack{}, nil
}

// Ingest handles batches shipped by range transfers
func (h *NodeHandler) Ingest(ctx context.Context, req *rpc.IngestRequest) (*rpc.Ack, error) {
	if err := h.agent.Ingest(req.Entries); err != nil {
		return nil, err
	}
	return &rpc.Ack{}, nil
}

// Heartbeat answers predecessor probes
func (h *NodeHandler) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatResponse, error) {
	return h.agent.Heartbeat(req), nil
}

// VerifyRead checks a value served by another replica
func (h *NodeHandler) VerifyRead(ctx context.Context, req *rpc.VerifyReadRequest) (*rpc.VerifyReadResponse, error) {
	return h.agent.VerifyRead(ctx, req)
}
