package handler

import (
	"context"

	"github.com/devrev/kvring/internal/controller"
	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
)

// ControllerHandler implements the gRPC controller service
type ControllerHandler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

// NewControllerHandler creates a new controller handler
func NewControllerHandler(ctrl *controller.Controller, logger *zap.Logger) *ControllerHandler {
	return &ControllerHandler{
		ctrl:   ctrl,
		logger: logger,
	}
}

// ReportDead handles a node's report that its successor stopped answering
func (h *ControllerHandler) ReportDead(ctx context.Context, req *rpc.NodeReport) (*rpc.ReportResponse, error) {
	if err := validateReport(req); err != nil {
		return nil, err
	}
	action := h.ctrl.ReportDead(ctx, req.Suspect, req.Reporter)
	return &rpc.ReportResponse{Action: action}, nil
}

// ReportCompromised handles a report that a node served or wrote a wrong value
func (h *ControllerHandler) ReportCompromised(ctx context.Context, req *rpc.NodeReport) (*rpc.ReportResponse, error) {
	if err := validateReport(req); err != nil {
		return nil, err
	}
	action := h.ctrl.ReportCompromised(ctx, req.Suspect, req.Reporter)
	return &rpc.ReportResponse{Action: action}, nil
}

// BroadcastUnsubscribe removes a subscription on every running node
func (h *ControllerHandler) BroadcastUnsubscribe(ctx context.Context, req *rpc.SubscriptionRequest) (*rpc.Ack, error) {
	if req.Key == "" || req.Subscriber == "" {
		return nil, errors.InvalidArgument("key and subscriber are required", nil)
	}
	if err := h.ctrl.BroadcastUnsubscribe(ctx, req.Key, req.Subscriber); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "unsubscribed"}, nil
}

// Initialize handles cluster initialization
func (h *ControllerHandler) Initialize(ctx context.Context, req *rpc.InitializeRequest) (*rpc.ClusterResponse, error) {
	h.logger.Info("Initialize requested",
		zap.Int("size", req.Size),
		zap.Int("cache_size", req.CacheSize),
		zap.String("strategy", req.Strategy))

	if err := h.ctrl.Initialize(ctx, req.Size, req.CacheSize, req.Strategy); err != nil {
		return nil, err
	}
	return h.ctrl.GetCluster(), nil
}

// AddNode handles node addition
func (h *ControllerHandler) AddNode(ctx context.Context, req *rpc.AddNodeRequest) (*rpc.ClusterResponse, error) {
	if _, err := h.ctrl.AddNode(ctx, req.CacheSize, req.Strategy); err != nil {
		return nil, err
	}
	return h.ctrl.GetCluster(), nil
}

// RemoveNode handles node removal by node key or inventory index
func (h *ControllerHandler) RemoveNode(ctx context.Context, req *rpc.RemoveNodeRequest) (*rpc.ClusterResponse, error) {
	var err error
	if req.Node != "" {
		id, parseErr := ring.ParseNodeID(req.Node)
		if parseErr != nil {
			return nil, errors.InvalidArgument("invalid node key", parseErr)
		}
		err = h.ctrl.RemoveNodeID(ctx, id)
	} else {
		err = h.ctrl.RemoveNode(ctx, req.Index)
	}
	if err != nil {
		return nil, err
	}
	return h.ctrl.GetCluster(), nil
}

// Shutdown handles cluster shutdown
func (h *ControllerHandler) Shutdown(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := h.ctrl.Shutdown(ctx); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "shut down"}, nil
}

// Start handles cluster start
func (h *ControllerHandler) Start(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := h.ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "started"}, nil
}

// Stop handles cluster stop
func (h *ControllerHandler) Stop(ctx context.Context, _ *rpc.Empty) (*rpc.Ack, error) {
	if err := h.ctrl.Stop(ctx); err != nil {
		return nil, err
	}
	return &rpc.Ack{Message: "stopped"}, nil
}

// GetCluster returns the current membership
func (h *ControllerHandler) GetCluster(ctx context.Context, _ *rpc.Empty) (*rpc.ClusterResponse, error) {
	return h.ctrl.GetCluster(), nil
}

// validateReport requires both parties. Two reports only corroborate each
// other when they come from distinct named members.
func validateReport(req *rpc.NodeReport) error {
	if req.Suspect.IsZero() {
		return errors.InvalidArgument("suspect is required", nil)
	}
	if req.Reporter.IsZero() {
		return errors.InvalidArgument("reporter is required", nil)
	}
	return nil
}
