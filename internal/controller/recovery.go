package controller

import (
	"context"

	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/integrity"
	"github.com/devrev/kvring/internal/model"
	"github.com/devrev/kvring/internal/ring"
	"go.uber.org/zap"
)

// Report actions returned to the reporting node
const (
	ActionIgnored   = "ignored"
	ActionAccepted  = "accepted"
	ActionReplacing = "replacing"
)

// ReportDead handles a node's claim that suspect stopped answering
// heartbeats. The claim is checked and acted on in the background under
// the recovery lock, in the order reports arrive.
func (c *Controller) ReportDead(ctx context.Context, suspect, reporter ring.NodeID) string {
	if !c.isRunning(suspect) {
		c.metrics.DeadReportsTotal.WithLabelValues(ActionIgnored).Inc()
		c.logger.Info("Ignoring dead report for node that is not running",
			zap.String("suspect", suspect.String()),
			zap.String("reporter", reporter.String()))
		return ActionIgnored
	}

	c.logger.Warn("Node reported dead",
		zap.String("suspect", suspect.String()),
		zap.String("reporter", reporter.String()))

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.handleDead(context.WithoutCancel(ctx), suspect, reporter)
	}()
	return ActionAccepted
}

func (c *Controller) handleDead(ctx context.Context, suspect, reporter ring.NodeID) {
	c.recovery.Lock()
	defer c.recovery.Unlock()

	if !c.isRunning(suspect) {
		c.metrics.DeadReportsTotal.WithLabelValues("already_replaced").Inc()
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	_, err := c.nodes.HealthCheck(probeCtx, suspect)
	cancel()

	if err == nil {
		c.metrics.DeadReportsTotal.WithLabelValues("false_alarm").Inc()
		c.logger.Info("Dead report was a false alarm",
			zap.String("suspect", suspect.String()),
			zap.String("reporter", reporter.String()))
		// the reporter's monitor has exited; a ring push restarts it
		if c.isRunning(reporter) {
			if err := c.nodes.ApplyRing(ctx, reporter, c.Ring()); err != nil {
				c.logger.Warn("Failed to re-push ring to reporter",
					zap.String("reporter", reporter.String()),
					zap.Error(err))
			}
		}
		return
	}

	outcome := "replaced"
	if err := c.replace(ctx, suspect, true); err != nil {
		outcome = "failed"
	}
	c.metrics.DeadReportsTotal.WithLabelValues(outcome).Inc()
}

// ReportCompromised records a claim that suspect served or wrote a wrong
// value. A claim corroborated by a second, distinct reporter replaces the
// suspect.
func (c *Controller) ReportCompromised(ctx context.Context, suspect, reporter ring.NodeID) string {
	if !c.isRunning(suspect) {
		c.corroborator.Forget(suspect)
		c.metrics.CompromiseReportsTotal.WithLabelValues(ActionIgnored).Inc()
		return ActionIgnored
	}

	verdict := c.corroborator.Report(suspect, reporter)
	c.metrics.CompromiseReportsTotal.WithLabelValues(verdict.String()).Inc()
	c.logger.Warn("Node reported compromised",
		zap.String("suspect", suspect.String()),
		zap.String("reporter", reporter.String()),
		zap.String("verdict", verdict.String()))

	if verdict != integrity.VerdictCorroborated {
		return verdict.String()
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.recovery.Lock()
		defer c.recovery.Unlock()
		c.replace(context.WithoutCancel(ctx), suspect, false)
	}()
	return ActionReplacing
}

// replace swaps suspect for an idle node, keeping the cluster size. At the
// minimum size the new node joins before the suspect leaves.
func (c *Controller) replace(ctx context.Context, suspect ring.NodeID, alreadyDead bool) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	defer c.corroborator.Forget(suspect)

	if !c.isRunning(suspect) {
		return nil
	}

	op := c.begin(model.OperationReplace, suspect)
	err := c.replaceNode(ctx, op, suspect, alreadyDead)
	c.finish(ctx, op, err)
	return err
}

func (c *Controller) replaceNode(ctx context.Context, op *model.MembershipOperation, suspect ring.NodeID, alreadyDead bool) error {
	if len(c.runningNodes()) <= MinClusterSize {
		node, err := c.pickIdle(suspect)
		if err != nil {
			return err
		}
		if err := c.addNode(ctx, op, node, true); err != nil {
			return err
		}
		return c.removeNode(ctx, op, suspect, alreadyDead)
	}

	if err := c.removeNode(ctx, op, suspect, alreadyDead); err != nil {
		return err
	}
	// the suspect is idle again once removed
	node, err := c.pickIdle(suspect)
	if err != nil {
		return err
	}
	return c.addNode(ctx, op, node, true)
}

// BroadcastUnsubscribe removes a subscription from every running node.
// Nodes that cannot be reached are logged and skipped.
func (c *Controller) BroadcastUnsubscribe(ctx context.Context, key, subscriber string) error {
	running := c.runningNodes()
	if len(running) == 0 {
		return kverrors.NotInitialized()
	}
	c.forEach(ctx, running, "unsubscribe", func(ctx context.Context, node ring.NodeID) error {
		return c.nodes.Unsubscribe(ctx, node, key, subscriber)
	})
	return nil
}
