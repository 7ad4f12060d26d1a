package controller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/model"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// transferPlan ships rng onto dest. sources are tried in order until one
// succeeds; only the first source may move, the fallbacks always copy.
type transferPlan struct {
	dest    ring.NodeID
	rng     ring.Interval
	sources []ring.NodeID
	move    bool
}

// addPlan builds the plan for an obligation returned by Ring.AddNode.
// The holder gives up the arc, so it moves it once the ring is larger
// than the replication factor; other replicas of the arc back it up.
func addPlan(current *ring.Ring, dest ring.NodeID, ob ring.Obligation, move bool) transferPlan {
	sources := []ring.NodeID{ob.Holder}
	for _, n := range current.ReplicaSet(ob.Range.End) {
		if n != ob.Holder && n != dest {
			sources = append(sources, n)
		}
	}
	return transferPlan{dest: dest, rng: ob.Range, sources: sources, move: move}
}

// removePlan builds the plan for an obligation returned by Ring.RemoveNode.
// The survivor copies the arc from the remaining replicas; a departing node
// that is still alive is the last resort.
func removePlan(current *ring.Ring, departing ring.NodeID, ob ring.Obligation, alreadyDead bool) transferPlan {
	var sources []ring.NodeID
	for _, n := range current.ReplicaSet(ob.Range.End) {
		if n != ob.Holder && n != departing {
			sources = append(sources, n)
		}
	}
	if !alreadyDead {
		sources = append(sources, departing)
	}
	return transferPlan{dest: ob.Holder, rng: ob.Range, sources: sources}
}

// runPlan executes plan and tallies the outcome on op. A plan no source
// could satisfy leaves dest with a partial replica; the operation goes on.
func (c *Controller) runPlan(ctx context.Context, op *model.MembershipOperation, plan transferPlan) {
	source, keys, err := c.transfer(ctx, plan)
	if err != nil {
		op.Partial++
		c.metrics.PartialRebalancesTotal.Inc()
		c.logger.Warn("Range left partially replicated",
			zap.String("operation_id", op.OperationID),
			zap.String("dest", plan.dest.String()),
			zap.String("range_start", plan.rng.Start),
			zap.String("range_end", plan.rng.End),
			zap.Error(err))
		return
	}

	op.Transfers++
	c.logger.Info("Range transferred",
		zap.String("operation_id", op.OperationID),
		zap.String("source", source.String()),
		zap.String("dest", plan.dest.String()),
		zap.Int("keys", keys))
}

func (c *Controller) transfer(ctx context.Context, plan transferPlan) (ring.NodeID, int, error) {
	for i, source := range plan.sources {
		mode := "copy"
		if plan.move && i == 0 {
			mode = "move"
		}

		keys, err := c.transferFrom(ctx, source, plan.dest, plan.rng, mode)
		if err == nil {
			c.metrics.TransfersTotal.WithLabelValues(mode, "ok").Inc()
			return source, keys, nil
		}

		c.metrics.TransfersTotal.WithLabelValues(mode, "failed").Inc()
		c.logger.Warn("Transfer failed, trying next replica",
			zap.String("source", source.String()),
			zap.String("dest", plan.dest.String()),
			zap.String("mode", mode),
			zap.Error(err))
	}
	return ring.NodeID{}, 0, kverrors.PartialRebalance(plan.dest.String(), plan.rng.Start, plan.rng.End)
}

// transferFrom holds source's write lock for the duration of one transfer
func (c *Controller) transferFrom(ctx context.Context, source, dest ring.NodeID, rng ring.Interval, mode string) (int, error) {
	if err := c.nodes.LockWrite(ctx, source); err != nil {
		return 0, fmt.Errorf("failed to lock writes on %s: %w", source, err)
	}
	defer func() {
		if err := c.nodes.UnlockWrite(ctx, source); err != nil {
			c.logger.Warn("Failed to unlock writes", zap.String("node", source.String()), zap.Error(err))
		}
	}()

	if mode == "move" {
		return c.nodes.MoveData(ctx, source, dest, rng)
	}
	return c.nodes.CopyData(ctx, source, dest, rng)
}

// broadcast pushes snap to nodes. Delivery is best effort: a node that
// misses it catches up on its next ring push.
func (c *Controller) broadcast(ctx context.Context, snap ring.Snapshot, nodes []ring.NodeID) int {
	var failed atomic.Int32
	c.forEach(ctx, nodes, "apply_ring", func(ctx context.Context, node ring.NodeID) error {
		err := c.nodes.ApplyRing(ctx, node, snap)
		if err != nil {
			failed.Add(1)
			c.metrics.BroadcastFailuresTotal.Inc()
		}
		return err
	})
	return int(failed.Load())
}

// forEach calls fn on every node in parallel. Every call runs to
// completion; the first failure is returned after all have been logged.
func (c *Controller) forEach(ctx context.Context, nodes []ring.NodeID, call string, fn func(context.Context, ring.NodeID) error) error {
	var g errgroup.Group
	for _, node := range nodes {
		node := node
		g.Go(func() error {
			if err := fn(ctx, node); err != nil {
				c.logger.Warn("Node call failed",
					zap.String("call", call),
					zap.String("node", node.String()),
					zap.Error(err))
				return fmt.Errorf("%s on %s: %w", call, node, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// launch starts node and waits until it answers health checks
func (c *Controller) launch(ctx context.Context, node ring.NodeID) error {
	if err := c.launcher.Launch(ctx, node); err != nil {
		return kverrors.NodeUnreachable(node.String(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ReadyPollInterval)
	defer ticker.Stop()

	for {
		_, err := c.nodes.HealthCheck(ctx, node)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return kverrors.NodeUnreachable(node.String(), err)
		case <-ticker.C:
		}
	}
}

// initialize installs snap on a freshly launched node
func (c *Controller) initialize(ctx context.Context, node ring.NodeID, snap ring.Snapshot, clear bool) error {
	c.mu.RLock()
	req := &rpc.InitRequest{CacheSize: c.cacheSize, Strategy: c.strategy, Ring: snap}
	c.mu.RUnlock()

	if err := c.nodes.Init(ctx, node, req); err != nil {
		return fmt.Errorf("failed to init %s: %w", node, err)
	}
	if !clear {
		return nil
	}
	if err := c.nodes.DeleteAllData(ctx, node); err != nil {
		return fmt.Errorf("failed to clear data on %s: %w", node, err)
	}
	return nil
}

// retire stops a live node leaving the ring
func (c *Controller) retire(ctx context.Context, node ring.NodeID) {
	steps := []struct {
		name string
		call func(context.Context, ring.NodeID) error
	}{
		{"lock_write", c.nodes.LockWrite},
		{"stop", c.nodes.Stop},
		{"unlock_write", c.nodes.UnlockWrite},
		{"shutdown", c.nodes.Shutdown},
	}
	for _, step := range steps {
		if err := step.call(ctx, node); err != nil {
			c.logger.Warn("Failed to retire node",
				zap.String("node", node.String()),
				zap.String("step", step.name),
				zap.Error(err))
		}
	}
}
