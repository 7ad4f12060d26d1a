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

// NodeClient talks to node agents and to client callback servers. It is
// used by the controller for commands, by nodes for peer traffic and by
// the KV client for the data plane.
type NodeClient struct {
	pool            *connPool
	timeout         time.Duration
	transferTimeout time.Duration
	logger          *zap.Logger
}

// NewNodeClient creates a node client. timeout bounds every call except
// range transfers, which are bounded by transferTimeout.
func NewNodeClient(timeout, transferTimeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) *NodeClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if transferTimeout == 0 {
		transferTimeout = 5 * time.Minute
	}

	return &NodeClient{
		pool:            newConnPool(logger, opts...),
		timeout:         timeout,
		transferTimeout: transferTimeout,
		logger:          logger,
	}
}

// Close closes all connections
func (c *NodeClient) Close() error {
	return c.pool.Close()
}

func (c *NodeClient) call(ctx context.Context, node ring.NodeID, method string, timeout time.Duration, fn func(context.Context, *rpc.NodeAgentClient) error) error {
	conn, err := c.pool.get(node.String())
	if err != nil {
		return fmt.Errorf("failed to get client for node %s: %w", node, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := fn(ctx, rpc.NewNodeAgentClient(conn)); err != nil {
		c.logger.Debug("Node RPC failed",
			zap.String("method", method),
			zap.String("node", node.String()),
			zap.Error(err))
		return fmt.Errorf("%s RPC to %s failed: %w", method, node, err)
	}
	return nil
}

func (c *NodeClient) command(ctx context.Context, node ring.NodeID, method string, fn func(context.Context, *rpc.NodeAgentClient) (*rpc.Ack, error)) error {
	return c.call(ctx, node, method, c.timeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		_, err := fn(ctx, stub)
		return err
	})
}

// Init installs a ring and cache settings on node
func (c *NodeClient) Init(ctx context.Context, node ring.NodeID, req *rpc.InitRequest) error {
	return c.command(ctx, node, "Init", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Init(ctx, req)
	})
}

// Start opens node to client traffic
func (c *NodeClient) Start(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "Start", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Start(ctx, &rpc.Empty{})
	})
}

// Stop closes node to client traffic
func (c *NodeClient) Stop(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "Stop", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Stop(ctx, &rpc.Empty{})
	})
}

// Shutdown terminates the node process
func (c *NodeClient) Shutdown(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "Shutdown", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Shutdown(ctx, &rpc.Empty{})
	})
}

// LockWrite blocks new writes on node and waits for in-flight ones
func (c *NodeClient) LockWrite(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "LockWrite", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.LockWrite(ctx, &rpc.Empty{})
	})
}

// UnlockWrite releases the write lock on node
func (c *NodeClient) UnlockWrite(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "UnlockWrite", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.UnlockWrite(ctx, &rpc.Empty{})
	})
}

// MoveData ships rng from source to dest and deletes it on source
func (c *NodeClient) MoveData(ctx context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	return c.transfer(ctx, "MoveData", source, dest, rng)
}

// CopyData ships rng from source to dest
func (c *NodeClient) CopyData(ctx context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	return c.transfer(ctx, "CopyData", source, dest, rng)
}

func (c *NodeClient) transfer(ctx context.Context, method string, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	var keys int
	err := c.call(ctx, source, method, c.transferTimeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		req := &rpc.TransferRequest{Destination: dest, Range: rng}
		var resp *rpc.TransferResponse
		var err error
		if method == "MoveData" {
			resp, err = stub.MoveData(ctx, req)
		} else {
			resp, err = stub.CopyData(ctx, req)
		}
		if err != nil {
			return err
		}
		keys = resp.Keys
		return nil
	})
	return keys, err
}

// ApplyRing pushes snap to node
func (c *NodeClient) ApplyRing(ctx context.Context, node ring.NodeID, snap ring.Snapshot) error {
	return c.command(ctx, node, "ApplyRing", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.ApplyRing(ctx, &rpc.ApplyRingRequest{Ring: snap})
	})
}

// DeleteAllData wipes node's storage
func (c *NodeClient) DeleteAllData(ctx context.Context, node ring.NodeID) error {
	return c.command(ctx, node, "DeleteAllData", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.DeleteAllData(ctx, &rpc.Empty{})
	})
}

// HealthCheck probes node
func (c *NodeClient) HealthCheck(ctx context.Context, node ring.NodeID) (*rpc.HealthResponse, error) {
	var resp *rpc.HealthResponse
	err := c.call(ctx, node, "HealthCheck", c.timeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		var err error
		resp, err = stub.HealthCheck(ctx, &rpc.Empty{})
		return err
	})
	return resp, err
}

// Unsubscribe removes one subscription on node
func (c *NodeClient) Unsubscribe(ctx context.Context, node ring.NodeID, key, subscriber string) error {
	return c.command(ctx, node, "Unsubscribe", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Unsubscribe(ctx, &rpc.SubscriptionRequest{Key: key, Subscriber: subscriber})
	})
}

// Replicate sends one committed write to a backup
func (c *NodeClient) Replicate(ctx context.Context, to ring.NodeID, req *rpc.ReplicateRequest) error {
	return c.command(ctx, to, "Replicate", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.Replicate(ctx, req)
	})
}

// Ingest stores a transfer batch on to
func (c *NodeClient) Ingest(ctx context.Context, to ring.NodeID, entries []rpc.Entry) error {
	return c.call(ctx, to, "Ingest", c.transferTimeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		_, err := stub.Ingest(ctx, &rpc.IngestRequest{Entries: entries})
		return err
	})
}

// Heartbeat probes to, carrying the sender's subscriptions
func (c *NodeClient) Heartbeat(ctx context.Context, to ring.NodeID, req *rpc.HeartbeatRequest) error {
	return c.call(ctx, to, "Heartbeat", c.timeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		_, err := stub.Heartbeat(ctx, req)
		return err
	})
}

// Put writes through node
func (c *NodeClient) Put(ctx context.Context, node ring.NodeID, req *rpc.PutRequest) (*rpc.KVResponse, error) {
	return c.kv(ctx, node, "Put", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.KVResponse, error) {
		return stub.Put(ctx, req)
	})
}

// Get reads from node
func (c *NodeClient) Get(ctx context.Context, node ring.NodeID, key string) (*rpc.KVResponse, error) {
	return c.kv(ctx, node, "Get", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.KVResponse, error) {
		return stub.Get(ctx, &rpc.GetRequest{Key: key})
	})
}

// Subscribe registers subscriber for key on node
func (c *NodeClient) Subscribe(ctx context.Context, node ring.NodeID, key, subscriber string) (*rpc.KVResponse, error) {
	return c.kv(ctx, node, "Subscribe", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.KVResponse, error) {
		return stub.Subscribe(ctx, &rpc.SubscriptionRequest{Key: key, Subscriber: subscriber})
	})
}

// ClientUnsubscribe asks node to drop subscriber everywhere
func (c *NodeClient) ClientUnsubscribe(ctx context.Context, node ring.NodeID, key, subscriber string) error {
	return c.command(ctx, node, "ClientUnsubscribe", func(ctx context.Context, stub *rpc.NodeAgentClient) (*rpc.Ack, error) {
		return stub.ClientUnsubscribe(ctx, &rpc.SubscriptionRequest{Key: key, Subscriber: subscriber})
	})
}

// VerifyRead asks node to compare a value another replica served
func (c *NodeClient) VerifyRead(ctx context.Context, node ring.NodeID, req *rpc.VerifyReadRequest) (*rpc.VerifyReadResponse, error) {
	var resp *rpc.VerifyReadResponse
	err := c.call(ctx, node, "VerifyRead", c.timeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		var err error
		resp, err = stub.VerifyRead(ctx, req)
		return err
	})
	return resp, err
}

func (c *NodeClient) kv(ctx context.Context, node ring.NodeID, method string, fn func(context.Context, *rpc.NodeAgentClient) (*rpc.KVResponse, error)) (*rpc.KVResponse, error) {
	var resp *rpc.KVResponse
	err := c.call(ctx, node, method, c.timeout, func(ctx context.Context, stub *rpc.NodeAgentClient) error {
		var err error
		resp, err = fn(ctx, stub)
		return err
	})
	return resp, err
}

// Notify tells a subscriber that a key changed
func (c *NodeClient) Notify(ctx context.Context, subscriber string, n *rpc.Notification) error {
	stub, err := c.callback(subscriber)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := stub.Notify(ctx, n); err != nil {
		return fmt.Errorf("Notify RPC to %s failed: %w", subscriber, err)
	}
	return nil
}

// ConfirmWrite asks a writing client what it last wrote under a key
func (c *NodeClient) ConfirmWrite(ctx context.Context, client string, req *rpc.ConfirmWriteRequest) (*rpc.ConfirmWriteResponse, error) {
	stub, err := c.callback(client)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := stub.ConfirmWrite(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ConfirmWrite RPC to %s failed: %w", client, err)
	}
	return resp, nil
}

func (c *NodeClient) callback(addr string) (*rpc.ClientCallbackClient, error) {
	conn, err := c.pool.get(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for %s: %w", addr, err)
	}
	return rpc.NewClientCallbackClient(conn), nil
}
