package integrity

import (
	"context"
	"time"

	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
)

// Reporter forwards compromise accusations to the controller
type Reporter interface {
	ReportCompromised(ctx context.Context, suspect ring.NodeID) error
}

// WriteConfirmer asks a writing client what it last wrote
type WriteConfirmer interface {
	ConfirmWrite(ctx context.Context, client string, req *rpc.ConfirmWriteRequest) (*rpc.ConfirmWriteResponse, error)
}

// Checker runs the node side of read verification and write confirmation
type Checker struct {
	reporter  Reporter
	confirmer WriteConfirmer
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.NodeMetrics
}

// NewChecker creates a checker
func NewChecker(reporter Reporter, confirmer WriteConfirmer, timeout time.Duration, logger *zap.Logger, m *metrics.NodeMetrics) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		reporter:  reporter,
		confirmer: confirmer,
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
	}
}

// VerifyRead compares the value a suspect served against the local copy.
// On disagreement the suspect is reported and the local copy returned.
func (c *Checker) VerifyRead(req *rpc.VerifyReadRequest, local string, found bool) *rpc.VerifyReadResponse {
	consistent := found == req.Found && (!found || local == req.Value)
	resp := &rpc.VerifyReadResponse{Consistent: consistent, Found: found, Value: local}
	if consistent {
		return resp
	}

	c.logger.Warn("Read verification mismatch",
		zap.String("key", req.Key),
		zap.String("suspect", req.Suspect.String()))
	c.countMismatch("read")
	go c.report(req.Suspect)
	return resp
}

// ConfirmWrite asks the client behind a replicated write what it wrote.
// It returns the client's value and true when the coordinator's copy
// differs; the coordinator is reported in that case.
func (c *Checker) ConfirmWrite(ctx context.Context, req *rpc.ReplicateRequest) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.confirmer.ConfirmWrite(ctx, req.Client, &rpc.ConfirmWriteRequest{
		Key:         req.Key,
		Value:       req.Value,
		Coordinator: req.Coordinator,
	})
	if err != nil {
		return "", false, err
	}
	if !resp.Known || resp.Match {
		return "", false, nil
	}

	c.logger.Warn("Write confirmation mismatch",
		zap.String("key", req.Key),
		zap.String("coordinator", req.Coordinator.String()))
	c.countMismatch("write")
	c.report(req.Coordinator)
	return resp.Value, true, nil
}

func (c *Checker) report(suspect ring.NodeID) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.reporter.ReportCompromised(ctx, suspect); err != nil {
		c.logger.Error("Failed to report compromised node",
			zap.String("suspect", suspect.String()),
			zap.Error(err))
	}
}

func (c *Checker) countMismatch(check string) {
	if c.metrics != nil {
		c.metrics.IntegrityMismatch.WithLabelValues(check).Inc()
	}
}
