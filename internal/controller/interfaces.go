package controller

import (
	"context"

	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
)

// NodeClient issues control commands to node agents
type NodeClient interface {
	Init(ctx context.Context, node ring.NodeID, req *rpc.InitRequest) error
	Start(ctx context.Context, node ring.NodeID) error
	Stop(ctx context.Context, node ring.NodeID) error
	Shutdown(ctx context.Context, node ring.NodeID) error
	LockWrite(ctx context.Context, node ring.NodeID) error
	UnlockWrite(ctx context.Context, node ring.NodeID) error
	MoveData(ctx context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error)
	CopyData(ctx context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error)
	ApplyRing(ctx context.Context, node ring.NodeID, snap ring.Snapshot) error
	DeleteAllData(ctx context.Context, node ring.NodeID) error
	HealthCheck(ctx context.Context, node ring.NodeID) (*rpc.HealthResponse, error)
	Unsubscribe(ctx context.Context, node ring.NodeID, key, subscriber string) error
}
