package node

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type transferMode string

const (
	modeMove transferMode = "move"
	modeCopy transferMode = "copy"
)

// MoveData ships every local key whose hash lies in rng to dest and
// deletes each batch once dest has stored it
func (a *Agent) MoveData(ctx context.Context, dest ring.NodeID, rng ring.Interval) (int, error) {
	return a.transfer(ctx, dest, rng, modeMove)
}

// CopyData ships every local key whose hash lies in rng to dest
func (a *Agent) CopyData(ctx context.Context, dest ring.NodeID, rng ring.Interval) (int, error) {
	return a.transfer(ctx, dest, rng, modeCopy)
}

func (a *Agent) transfer(ctx context.Context, dest ring.NodeID, rng ring.Interval, mode transferMode) (int, error) {
	if dest == a.self {
		return 0, errors.InvalidArgument("cannot transfer data to self", nil)
	}

	store := a.view().store
	batchSize := a.cfg.Transfer.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}

	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan []rpc.Entry, 1)

	g.Go(func() error {
		defer close(batches)
		batch := make([]rpc.Entry, 0, batchSize)
		var sendErr error
		err := store.Scan(func(key, value string) bool {
			if !rng.Contains(ring.Hash(key)) {
				return true
			}
			batch = append(batch, rpc.Entry{Key: key, Value: value})
			if len(batch) < batchSize {
				return true
			}
			select {
			case batches <- batch:
				batch = make([]rpc.Entry, 0, batchSize)
				return true
			case <-ctx.Done():
				sendErr = ctx.Err()
				return false
			}
		})
		if err != nil {
			return fmt.Errorf("failed to scan local data: %w", err)
		}
		if sendErr != nil {
			return sendErr
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	sent := 0
	g.Go(func() error {
		for batch := range batches {
			if err := a.sendBatch(ctx, dest, batch); err != nil {
				return err
			}
			if mode == modeMove {
				for _, e := range batch {
					if err := store.Delete(e.Key); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("failed to delete moved key: %w", err)
					}
				}
			}
			sent += len(batch)
		}
		return nil
	})

	err := g.Wait()
	if a.metrics != nil && sent > 0 {
		a.metrics.TransferredKeys.WithLabelValues(string(mode)).Add(float64(sent))
	}
	if err != nil {
		a.logger.Error("Range transfer failed",
			zap.String("mode", string(mode)),
			zap.String("destination", dest.String()),
			zap.Int("sent", sent),
			zap.Error(err))
		if errors.IsUnreachable(err) {
			return sent, errors.NodeUnreachable(dest.String(), err)
		}
		return sent, errors.InternalError("range transfer failed", err)
	}

	a.logger.Info("Range transferred",
		zap.String("mode", string(mode)),
		zap.String("destination", dest.String()),
		zap.String("start", rng.Start),
		zap.String("end", rng.End),
		zap.Int("keys", sent))
	return sent, nil
}

func (a *Agent) sendBatch(ctx context.Context, dest ring.NodeID, batch []rpc.Entry) error {
	if a.cfg.Transfer.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Transfer.Timeout)
		defer cancel()
	}
	if err := a.peers.Ingest(ctx, dest, batch); err != nil {
		return fmt.Errorf("failed to ingest batch on %s: %w", dest, err)
	}
	return nil
}
