package controller

import (
	"context"
	"fmt"

	"github.com/devrev/kvring/internal/config"
	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/model"
	"github.com/devrev/kvring/internal/ring"
	"go.uber.org/zap"
)

// Initialize starts a cluster of size nodes. After a shutdown the node
// remembered as last removed is restarted first with its data intact and
// the ring is rebuilt around it. Nodes are left stopped until Start.
func (c *Controller) Initialize(ctx context.Context, size, cacheSize int, strategy string) error {
	if size < MinClusterSize {
		return kverrors.InvalidClusterSize(size, MinClusterSize)
	}
	if strategy == "" {
		strategy = c.cfg.DefaultCacheStrategy
	}
	if !config.IsValidCacheStrategy(strategy) {
		return kverrors.InvalidArgument(fmt.Sprintf("unknown cache strategy %q", strategy), nil)
	}
	if cacheSize <= 0 {
		cacheSize = c.cfg.DefaultCacheSize
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	if running := c.runningNodes(); len(running) > 0 {
		return kverrors.AlreadyInitialized(len(running))
	}
	if size > len(c.inventory) {
		return kverrors.NoIdleNodes().
			WithDetail("requested", size).
			WithDetail("inventory", len(c.inventory))
	}

	c.mu.Lock()
	c.cacheSize = cacheSize
	c.strategy = strategy
	lastRemoved := c.lastRemoved
	c.mu.Unlock()

	var err error
	if lastRemoved == nil {
		op := c.begin(model.OperationInitialize, ring.NodeID{})
		err = c.initializeFresh(ctx, size)
		c.finish(ctx, op, err)
	} else {
		op := c.begin(model.OperationInitialize, *lastRemoved)
		err = c.reinitialize(ctx, op, *lastRemoved, size)
		c.finish(ctx, op, err)
	}
	return err
}

func (c *Controller) initializeFresh(ctx context.Context, size int) error {
	picked := make([]ring.NodeID, 0, size)
	for len(picked) < size {
		node, err := c.pickIdle(picked...)
		if err != nil {
			return err
		}
		picked = append(picked, node)
	}

	for _, node := range picked {
		if err := c.launch(ctx, node); err != nil {
			return err
		}
	}

	r := c.nextRing(picked...)
	snap := r.Snapshot()
	for _, node := range picked {
		if err := c.initialize(ctx, node, snap, true); err != nil {
			return err
		}
	}

	c.commit(r, picked)
	return nil
}

// reinitialize grows the ring one node at a time from the node that
// survived the last shutdown, copying the full ring onto each newcomer
func (c *Controller) reinitialize(ctx context.Context, op *model.MembershipOperation, first ring.NodeID, size int) error {
	if err := c.launch(ctx, first); err != nil {
		return err
	}

	r := c.nextRing(first)
	if err := c.initialize(ctx, first, r.Snapshot(), false); err != nil {
		return err
	}
	running := []ring.NodeID{first}

	for len(running) < MinClusterSize {
		node, err := c.pickIdle(running...)
		if err != nil {
			return err
		}
		if err := c.launch(ctx, node); err != nil {
			return err
		}

		next := r.Clone()
		obligations, err := next.AddNode(node)
		if err != nil {
			return kverrors.InternalError("failed to add node to ring", err)
		}
		if err := c.initialize(ctx, node, next.Snapshot(), true); err != nil {
			return err
		}
		for _, ob := range obligations {
			c.runPlan(ctx, op, addPlan(r, node, ob, false))
		}

		r = next
		running = append(running, node)
	}

	c.commit(r, running)
	c.mu.Lock()
	c.lastRemoved = nil
	c.mu.Unlock()
	c.broadcast(ctx, r.Snapshot(), running)

	for len(c.runningNodes()) < size {
		node, err := c.pickIdle()
		if err != nil {
			return err
		}
		if err := c.addNode(ctx, op, node, false); err != nil {
			return err
		}
	}
	return nil
}

// AddNode starts an idle node and hands it its share of the ring
func (c *Controller) AddNode(ctx context.Context, cacheSize int, strategy string) (ring.NodeID, error) {
	if strategy != "" && !config.IsValidCacheStrategy(strategy) {
		return ring.NodeID{}, kverrors.InvalidArgument(fmt.Sprintf("unknown cache strategy %q", strategy), nil)
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	if len(c.runningNodes()) == 0 {
		return ring.NodeID{}, kverrors.NotInitialized()
	}

	c.mu.Lock()
	if cacheSize > 0 {
		c.cacheSize = cacheSize
	}
	if strategy != "" {
		c.strategy = strategy
	}
	c.mu.Unlock()

	node, err := c.pickIdle()
	if err != nil {
		return ring.NodeID{}, err
	}

	op := c.begin(model.OperationAddNode, node)
	err = c.addNode(ctx, op, node, true)
	c.finish(ctx, op, err)
	if err != nil {
		return ring.NodeID{}, err
	}
	return node, nil
}

// addNode launches node, transfers every obligation onto it and publishes
// the new ring. Callers hold ops.
func (c *Controller) addNode(ctx context.Context, op *model.MembershipOperation, node ring.NodeID, start bool) error {
	if err := c.launch(ctx, node); err != nil {
		return err
	}

	current := c.currentRing()
	next := current.Clone()
	obligations, err := next.AddNode(node)
	if err != nil {
		return kverrors.InternalError("failed to add node to ring", err)
	}

	if err := c.initialize(ctx, node, next.Snapshot(), true); err != nil {
		return err
	}

	move := next.Size() > ring.ReplicationFactor
	for _, ob := range obligations {
		c.runPlan(ctx, op, addPlan(current, node, ob, move))
	}

	running := append(c.runningNodes(), node)
	c.commit(next, running)

	if start {
		if err := c.nodes.Start(ctx, node); err != nil {
			c.logger.Error("Failed to start added node", zap.String("node", node.String()), zap.Error(err))
		}
	}

	c.broadcast(ctx, next.Snapshot(), running)
	return nil
}

// RemoveNode removes the inventory machine at index. Removing a machine
// that is not running is a no-op.
func (c *Controller) RemoveNode(ctx context.Context, index int) error {
	if index < 0 || index >= len(c.inventory) {
		return kverrors.InvalidArgument(fmt.Sprintf("node index %d out of range [0, %d)", index, len(c.inventory)), nil)
	}
	return c.RemoveNodeID(ctx, c.inventory[index])
}

// RemoveNodeID removes node from the ring and shuts it down
func (c *Controller) RemoveNodeID(ctx context.Context, node ring.NodeID) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	running := c.runningNodes()
	if len(running) == 0 {
		return kverrors.NotInitialized()
	}
	if indexOf(running, node) < 0 {
		c.logger.Info("Node is not running, nothing to remove", zap.String("node", node.String()))
		return nil
	}
	if len(running) <= MinClusterSize {
		return kverrors.InvalidClusterSize(len(running)-1, MinClusterSize)
	}

	op := c.begin(model.OperationRemoveNode, node)
	err := c.removeNode(ctx, op, node, false)
	c.finish(ctx, op, err)
	return err
}

// removeNode backfills every survivor whose read window grew, retires the
// node unless it is already dead and publishes the new ring. Callers hold
// ops.
func (c *Controller) removeNode(ctx context.Context, op *model.MembershipOperation, node ring.NodeID, alreadyDead bool) error {
	current := c.currentRing()
	next := current.Clone()
	obligations, err := next.RemoveNode(node)
	if err != nil {
		return kverrors.NodeNotFound(node.String())
	}

	for _, ob := range obligations {
		c.runPlan(ctx, op, removePlan(current, node, ob, alreadyDead))
	}

	if !alreadyDead {
		c.retire(ctx, node)
	}

	running := without(c.runningNodes(), node)
	c.commit(next, running)

	c.broadcast(ctx, next.Snapshot(), running)
	return nil
}

// Shutdown drains the ring to MinClusterSize nodes, remembers one of them
// for the next Initialize and shuts the rest down
func (c *Controller) Shutdown(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if len(c.runningNodes()) == 0 {
		return kverrors.NotInitialized()
	}

	op := c.begin(model.OperationShutdown, ring.NodeID{})
	for {
		running := c.runningNodes()
		if len(running) <= MinClusterSize {
			break
		}
		if err := c.removeNode(ctx, op, running[len(running)-1], false); err != nil {
			c.finish(ctx, op, err)
			return err
		}
	}

	remaining := c.runningNodes()
	last := remaining[0]
	c.forEach(ctx, remaining, "shutdown", c.nodes.Shutdown)

	c.commit(c.nextRing(), nil)
	c.mu.Lock()
	c.lastRemoved = &last
	c.mu.Unlock()

	c.logger.Info("Cluster shut down", zap.String("last_removed", last.String()))
	c.finish(ctx, op, nil)
	return nil
}

// Start opens every running node to client traffic
func (c *Controller) Start(ctx context.Context) error {
	return c.lifecycle(ctx, "start", c.nodes.Start)
}

// Stop closes every running node to client traffic
func (c *Controller) Stop(ctx context.Context) error {
	return c.lifecycle(ctx, "stop", c.nodes.Stop)
}

func (c *Controller) lifecycle(ctx context.Context, call string, fn func(context.Context, ring.NodeID) error) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	running := c.runningNodes()
	if len(running) == 0 {
		return kverrors.NotInitialized()
	}
	if err := c.forEach(ctx, running, call, fn); err != nil {
		return kverrors.InternalError(fmt.Sprintf("%s did not reach every node", call), err)
	}
	return nil
}
