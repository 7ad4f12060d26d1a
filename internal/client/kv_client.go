package client

import (
	"context"
	"math/rand"
	"sync"

	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

// DataPlane is the node-facing surface the KV client routes requests over
type DataPlane interface {
	Put(ctx context.Context, node ring.NodeID, req *rpc.PutRequest) (*rpc.KVResponse, error)
	Get(ctx context.Context, node ring.NodeID, key string) (*rpc.KVResponse, error)
	Subscribe(ctx context.Context, node ring.NodeID, key, subscriber string) (*rpc.KVResponse, error)
	ClientUnsubscribe(ctx context.Context, node ring.NodeID, key, subscriber string) error
	VerifyRead(ctx context.Context, node ring.NodeID, req *rpc.VerifyReadRequest) (*rpc.VerifyReadResponse, error)
}

// RingSource supplies the authoritative ring when the client has none or
// its copy stops working
type RingSource interface {
	GetCluster(ctx context.Context) (*rpc.ClusterResponse, error)
}

// KVOptions configures a KVClient
type KVOptions struct {
	Nodes DataPlane
	// Seed is asked for the ring on first use and after an unreachable
	// coordinator. It may be nil when Ring is set.
	Seed RingSource
	Ring *ring.Snapshot
	// Callback records this client's writes so replicas can confirm them
	Callback *CallbackServer
	// CallbackAddress is where nodes reach Callback
	CallbackAddress string
	// VerifyReads asks a second replica to confirm every read
	VerifyReads bool
	MaxAttempts int
	Logger      *zap.Logger
}

// KVClient routes reads and writes using its cached copy of the ring
type KVClient struct {
	nodes    DataPlane
	seed     RingSource
	callback *CallbackServer
	address  string
	verify   bool
	attempts int
	logger   *zap.Logger

	mu   sync.RWMutex
	ring *ring.Ring
	pick func(n int) int
}

// NewKVClient creates a KV client
func NewKVClient(opts KVOptions) (*KVClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	c := &KVClient{
		nodes:    opts.Nodes,
		seed:     opts.Seed,
		callback: opts.Callback,
		address:  opts.CallbackAddress,
		verify:   opts.VerifyReads,
		attempts: attempts,
		logger:   logger,
		pick:     rand.Intn,
	}
	if opts.Ring != nil {
		if err := c.install(opts.Ring); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Ring returns the client's cached ring, or nil before the first lookup
func (c *KVClient) Ring() *ring.Ring {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring
}

// Put writes value under key through the key's coordinator
func (c *KVClient) Put(ctx context.Context, key, value string) (rpc.Status, error) {
	if key == "" || value == "" {
		return rpc.StatusPutError, errors.InvalidArgument("key and value are required", nil)
	}
	return c.write(ctx, key, value)
}

// Delete removes key through the key's coordinator
func (c *KVClient) Delete(ctx context.Context, key string) (rpc.Status, error) {
	if key == "" {
		return rpc.StatusDeleteError, errors.InvalidArgument("key is required", nil)
	}
	return c.write(ctx, key, "")
}

func (c *KVClient) write(ctx context.Context, key, value string) (rpc.Status, error) {
	req := &rpc.PutRequest{Key: key, Value: value}
	if c.callback != nil {
		c.callback.RecordWrite(key, value)
		req.Client = c.address
	}

	resp, err := c.toCoordinator(ctx, key, func(ctx context.Context, node ring.NodeID) (*rpc.KVResponse, error) {
		return c.nodes.Put(ctx, node, req)
	})
	if err != nil {
		return errorStatusFor(value), err
	}
	return resp.Status, nil
}

// Subscribe registers this client's callback server for changes to key
func (c *KVClient) Subscribe(ctx context.Context, key string) error {
	if c.address == "" {
		return errors.InvalidArgument("subscribing requires a callback address", nil)
	}
	resp, err := c.toCoordinator(ctx, key, func(ctx context.Context, node ring.NodeID) (*rpc.KVResponse, error) {
		return c.nodes.Subscribe(ctx, node, key, c.address)
	})
	if err != nil {
		return err
	}
	if resp.Status != rpc.StatusSubscribed {
		return errors.InternalError("subscribe failed with "+string(resp.Status), nil)
	}
	return nil
}

// Unsubscribe removes this client's subscription to key on every node
func (c *KVClient) Unsubscribe(ctx context.Context, key string) error {
	if c.address == "" {
		return errors.InvalidArgument("unsubscribing requires a callback address", nil)
	}
	r, err := c.current(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, node := range c.order(r.ReplicaSet(ring.Hash(key))) {
		if lastErr = c.nodes.ClientUnsubscribe(ctx, node, key, c.address); lastErr == nil {
			return nil
		}
		if !errors.IsUnreachable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// toCoordinator sends a request to the coordinator of key, following
// SERVER_NOT_RESPONSIBLE redirects and refreshing the ring from the seed
// when the coordinator cannot be reached
func (c *KVClient) toCoordinator(ctx context.Context, key string, send func(context.Context, ring.NodeID) (*rpc.KVResponse, error)) (*rpc.KVResponse, error) {
	hash := ring.Hash(key)
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		r, err := c.current(ctx)
		if err != nil {
			return nil, err
		}
		node, ok := r.Coordinator(hash)
		if !ok {
			return nil, errors.NotInitialized()
		}

		resp, err := send(ctx, node)
		if err != nil {
			if !errors.IsUnreachable(err) {
				return nil, err
			}
			lastErr = err
			c.logger.Debug("Coordinator unreachable",
				zap.String("key", key),
				zap.String("node", node.String()),
				zap.Int("attempt", attempt+1))
			c.refresh(ctx)
			continue
		}
		if resp.Status == rpc.StatusNotResponsible {
			if err := c.install(resp.Ring); err != nil {
				return nil, err
			}
			lastErr = errors.InternalError("coordinator redirected request", nil).WithDetail("redirected_by", node.String())
			continue
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.InternalError("request did not reach a responsible node", nil)
	}
	return nil, lastErr
}

// Get reads key from a random replica, trying the others in ring order
// when it cannot be reached. found is false when the key does not exist.
func (c *KVClient) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.InvalidArgument("key is required", nil)
	}
	hash := ring.Hash(key)
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		r, err := c.current(ctx)
		if err != nil {
			return "", false, err
		}
		replicas := c.order(r.ReplicaSet(hash))
		if len(replicas) == 0 {
			return "", false, errors.NotInitialized()
		}

		redirected := false
		for _, node := range replicas {
			resp, err := c.nodes.Get(ctx, node, key)
			if err != nil {
				if !errors.IsUnreachable(err) {
					return "", false, err
				}
				lastErr = err
				continue
			}

			switch resp.Status {
			case rpc.StatusGetSuccess, rpc.StatusGetError:
				value, found := resp.Value, resp.Status == rpc.StatusGetSuccess
				if c.verify {
					value, found = c.verifyRead(ctx, key, value, found, node, without(replicas, node))
				}
				return value, found, nil
			case rpc.StatusNotResponsible:
				if err := c.install(resp.Ring); err != nil {
					return "", false, err
				}
				redirected = true
			default:
				lastErr = errors.NodeUnreachable(node.String(), nil).WithDetail("status", string(resp.Status))
				continue
			}
			break
		}

		if !redirected {
			c.refresh(ctx)
		}
	}

	if lastErr == nil {
		lastErr = errors.InternalError("read did not reach a responsible replica", nil)
	}
	return "", false, lastErr
}

// verifyRead asks the first reachable replica among others to confirm what
// served returned. A disagreeing verifier's copy wins; the verifier reports
// the suspect to the controller.
func (c *KVClient) verifyRead(ctx context.Context, key, value string, found bool, served ring.NodeID, others []ring.NodeID) (string, bool) {
	req := &rpc.VerifyReadRequest{Key: key, Value: value, Found: found, Suspect: served}
	for _, node := range others {
		resp, err := c.nodes.VerifyRead(ctx, node, req)
		if err != nil {
			c.logger.Debug("Read verification failed",
				zap.String("key", key),
				zap.String("verifier", node.String()),
				zap.Error(err))
			continue
		}
		if !resp.Consistent {
			c.logger.Warn("Replica served an inconsistent value",
				zap.String("key", key),
				zap.String("suspect", served.String()),
				zap.String("verifier", node.String()))
			return resp.Value, resp.Found
		}
		return value, found
	}
	return value, found
}

// order rotates replicas to start at a random member
func (c *KVClient) order(replicas []ring.NodeID) []ring.NodeID {
	if len(replicas) < 2 {
		return replicas
	}
	start := c.pick(len(replicas))
	out := make([]ring.NodeID, 0, len(replicas))
	out = append(out, replicas[start:]...)
	return append(out, replicas[:start]...)
}

func (c *KVClient) current(ctx context.Context) (*ring.Ring, error) {
	c.mu.RLock()
	r := c.ring
	c.mu.RUnlock()
	if r != nil && r.Size() > 0 {
		return r, nil
	}

	if c.seed == nil {
		return nil, errors.NotInitialized()
	}
	if err := c.fetch(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ring == nil || c.ring.Size() == 0 {
		return nil, errors.NotInitialized()
	}
	return c.ring, nil
}

func (c *KVClient) refresh(ctx context.Context) {
	if c.seed == nil {
		return
	}
	if err := c.fetch(ctx); err != nil {
		c.logger.Warn("Failed to refresh ring", zap.Error(err))
	}
}

func (c *KVClient) fetch(ctx context.Context) error {
	cluster, err := c.seed.GetCluster(ctx)
	if err != nil {
		return errors.NodeUnreachable("controller", err)
	}
	return c.install(&cluster.Ring)
}

// install replaces the cached ring unless snap is older
func (c *KVClient) install(snap *ring.Snapshot) error {
	if snap == nil || snap.IsEmpty() {
		return nil
	}
	r, err := ring.FromSnapshot(*snap)
	if err != nil {
		return errors.InvalidSnapshot(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ring != nil && r.Version() < c.ring.Version() {
		return nil
	}
	c.ring = r
	return nil
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

func errorStatusFor(value string) rpc.Status {
	if value == "" {
		return rpc.StatusDeleteError
	}
	return rpc.StatusPutError
}
