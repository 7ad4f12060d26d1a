package client

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ControllerClient is a node's or operator's connection to the controller.
// As a node's controller link it names self as the reporter.
type ControllerClient struct {
	conn    *grpc.ClientConn
	stub    *rpc.ControllerClient
	self    ring.NodeID
	timeout time.Duration
	logger  *zap.Logger
}

// NewControllerClient connects to the controller at address
func NewControllerClient(address string, self ring.NodeID, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*ControllerClient, error) {
	conn, err := rpc.Dial(address, opts...)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &ControllerClient{
		conn:    conn,
		stub:    rpc.NewControllerClient(conn),
		self:    self,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Close closes the connection
func (c *ControllerClient) Close() error {
	return c.conn.Close()
}

// ReportDead tells the controller that suspect stopped answering heartbeats
func (c *ControllerClient) ReportDead(ctx context.Context, suspect ring.NodeID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.stub.ReportDead(ctx, &rpc.NodeReport{Suspect: suspect, Reporter: c.self})
	if err != nil {
		return fmt.Errorf("ReportDead RPC failed: %w", err)
	}
	c.logger.Info("Reported dead node",
		zap.String("suspect", suspect.String()),
		zap.String("action", resp.Action))
	return nil
}

// ReportCompromised tells the controller that suspect served or wrote a wrong value
func (c *ControllerClient) ReportCompromised(ctx context.Context, suspect ring.NodeID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.stub.ReportCompromised(ctx, &rpc.NodeReport{Suspect: suspect, Reporter: c.self})
	if err != nil {
		return fmt.Errorf("ReportCompromised RPC failed: %w", err)
	}
	c.logger.Info("Reported compromised node",
		zap.String("suspect", suspect.String()),
		zap.String("action", resp.Action))
	return nil
}

// BroadcastUnsubscribe asks the controller to drop a subscription cluster-wide
func (c *ControllerClient) BroadcastUnsubscribe(ctx context.Context, key, subscriber string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.stub.BroadcastUnsubscribe(ctx, &rpc.SubscriptionRequest{Key: key, Subscriber: subscriber}); err != nil {
		return fmt.Errorf("BroadcastUnsubscribe RPC failed: %w", err)
	}
	return nil
}

// Initialize starts a cluster of size nodes
func (c *ControllerClient) Initialize(ctx context.Context, size, cacheSize int, strategy string) (*rpc.ClusterResponse, error) {
	return c.stub.Initialize(ctx, &rpc.InitializeRequest{Size: size, CacheSize: cacheSize, Strategy: strategy})
}

// AddNode adds one idle machine to the ring
func (c *ControllerClient) AddNode(ctx context.Context, cacheSize int, strategy string) (*rpc.ClusterResponse, error) {
	return c.stub.AddNode(ctx, &rpc.AddNodeRequest{CacheSize: cacheSize, Strategy: strategy})
}

// RemoveNode removes a node named by inventory index or by key.
// node takes precedence when non-empty.
func (c *ControllerClient) RemoveNode(ctx context.Context, index int, node string) (*rpc.ClusterResponse, error) {
	return c.stub.RemoveNode(ctx, &rpc.RemoveNodeRequest{Index: index, Node: node})
}

// Shutdown stops every node
func (c *ControllerClient) Shutdown(ctx context.Context) error {
	_, err := c.stub.Shutdown(ctx, &rpc.Empty{})
	return err
}

// Start opens every node to client traffic
func (c *ControllerClient) Start(ctx context.Context) error {
	_, err := c.stub.Start(ctx, &rpc.Empty{})
	return err
}

// Stop closes every node to client traffic
func (c *ControllerClient) Stop(ctx context.Context) error {
	_, err := c.stub.Stop(ctx, &rpc.Empty{})
	return err
}

// GetCluster returns the current membership and ring
func (c *ControllerClient) GetCluster(ctx context.Context) (*rpc.ClusterResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.stub.GetCluster(ctx, &rpc.Empty{})
}
