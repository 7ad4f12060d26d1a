package replication

import (
	"context"
	"time"

	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/util/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender delivers one replicated write to a backup node
type Sender interface {
	Replicate(ctx context.Context, to ring.NodeID, req *rpc.ReplicateRequest) error
}

// Config holds replicator configuration
type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Replicator copies committed writes to backup nodes after the client
// has been answered. Sends are not retried; a backup that misses a write
// stays stale until the key is written again or ranges move.
type Replicator struct {
	sender  Sender
	pool    *workerpool.WorkerPool
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.NodeMetrics
}

// New creates a replicator with its own worker pool
func New(sender Sender, cfg Config, logger *zap.Logger, m *metrics.NodeMetrics) *Replicator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	r := &Replicator{
		sender:  sender,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: m,
	}
	r.pool = workerpool.NewWorkerPool(workerpool.Config{
		Name:       "replication",
		MaxWorkers: cfg.Workers,
		QueueSize:  cfg.QueueSize,
		Logger:     logger,
		Observer:   r.observe,
	})
	return r
}

// Replicate queues req for every backup and returns immediately
func (r *Replicator) Replicate(backups []ring.NodeID, req rpc.ReplicateRequest) {
	for _, backup := range backups {
		backup := backup
		task := workerpool.Task{
			ID:   uuid.NewString(),
			Kind: "replicate",
			Fn: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, r.timeout)
				defer cancel()
				msg := req
				return r.sender.Replicate(ctx, backup, &msg)
			},
		}
		if !r.pool.TrySubmit(task) {
			r.logger.Warn("Replication dropped",
				zap.String("backup", backup.String()),
				zap.String("key", req.Key))
			if r.metrics != nil {
				r.metrics.ReplicationTotal.WithLabelValues("dropped").Inc()
			}
		}
	}
}

func (r *Replicator) observe(kind string, err error) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.metrics.ReplicationTotal.WithLabelValues(result).Inc()
}

// Stop waits for queued sends to finish
func (r *Replicator) Stop(timeout time.Duration) error {
	return r.pool.Stop(timeout)
}
