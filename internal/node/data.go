package node

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"github.com/devrev/kvring/internal/util/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Put commits a client write when this node coordinates key, then
// replicates it to the backups after answering. An empty value deletes.
func (a *Agent) Put(ctx context.Context, key, value, client string) *rpc.KVResponse {
	start := time.Now()
	op := "put"
	if value == "" {
		op = "delete"
	}
	resp := a.put(key, value, client)
	a.observe(op, resp.Status, start)
	return resp
}

func (a *Agent) put(key, value, client string) *rpc.KVResponse {
	v := a.view()
	if !v.started || v.ring == nil {
		return &rpc.KVResponse{Status: rpc.StatusStopped, Key: key}
	}
	if err := a.validator.ValidatePut(key, value); err != nil {
		return &rpc.KVResponse{Status: errorStatus(value), Key: key}
	}

	hash := ring.Hash(key)
	rng, ok := v.ring.Range(a.self)
	if !ok || !rng.IsInRange(hash) {
		return &rpc.KVResponse{Status: rpc.StatusNotResponsible, Key: key, Ring: v.snapshot()}
	}

	if !a.gate.TryEnter() {
		return &rpc.KVResponse{Status: rpc.StatusWriteLock, Key: key}
	}
	status := a.commit(v.store, key, value)
	a.gate.Exit()

	if status == rpc.StatusPutError || status == rpc.StatusDeleteError {
		return &rpc.KVResponse{Status: status, Key: key}
	}

	a.replicator.Replicate(v.ring.BackupSet(hash), rpc.ReplicateRequest{
		Key:         key,
		Value:       value,
		Coordinator: a.self,
		Client:      client,
	})
	a.notify(key, value)

	return &rpc.KVResponse{Status: status, Key: key, Value: value}
}

func (a *Agent) commit(store storage.Engine, key, value string) rpc.Status {
	if value == "" {
		if err := store.Delete(key); err != nil {
			if !stderrors.Is(err, storage.ErrNotFound) {
				a.logger.Error("Failed to delete key", zap.String("key", key), zap.Error(err))
			}
			return rpc.StatusDeleteError
		}
		return rpc.StatusDeleteSuccess
	}

	res, err := store.Put(key, value)
	if err != nil {
		a.logger.Error("Failed to write key", zap.String("key", key), zap.Error(err))
		return rpc.StatusPutError
	}
	if res == storage.Updated {
		return rpc.StatusPutUpdate
	}
	return rpc.StatusPutSuccess
}

func errorStatus(value string) rpc.Status {
	if value == "" {
		return rpc.StatusDeleteError
	}
	return rpc.StatusPutError
}

// Get reads key when it falls inside this node's read window
func (a *Agent) Get(ctx context.Context, key string) *rpc.KVResponse {
	start := time.Now()
	resp := a.get(key)
	a.observe("get", resp.Status, start)
	return resp
}

func (a *Agent) get(key string) *rpc.KVResponse {
	v := a.view()
	if !v.started || v.ring == nil {
		return &rpc.KVResponse{Status: rpc.StatusStopped, Key: key}
	}
	if err := a.validator.ValidateKey(key); err != nil {
		return &rpc.KVResponse{Status: rpc.StatusGetError, Key: key}
	}

	rng, ok := v.ring.Range(a.self)
	if !ok || !rng.IsInReadRange(ring.Hash(key)) {
		return &rpc.KVResponse{Status: rpc.StatusNotResponsible, Key: key, Ring: v.snapshot()}
	}

	value, err := v.store.Get(key)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			a.logger.Error("Failed to read key", zap.String("key", key), zap.Error(err))
		}
		return &rpc.KVResponse{Status: rpc.StatusGetError, Key: key}
	}
	return &rpc.KVResponse{Status: rpc.StatusGetSuccess, Key: key, Value: value}
}

// Subscribe registers a client for change notifications on key. Only the
// coordinator of key accepts subscriptions.
func (a *Agent) Subscribe(ctx context.Context, key, subscriber string) *rpc.KVResponse {
	v := a.view()
	if !v.started || v.ring == nil {
		return &rpc.KVResponse{Status: rpc.StatusStopped, Key: key}
	}
	if err := a.validator.ValidateSubscriber(subscriber); err != nil {
		return &rpc.KVResponse{Status: rpc.StatusGetError, Key: key}
	}

	rng, ok := v.ring.Range(a.self)
	if !ok || !rng.IsInRange(ring.Hash(key)) {
		return &rpc.KVResponse{Status: rpc.StatusNotResponsible, Key: key, Ring: v.snapshot()}
	}

	if a.subs.Add(key, subscriber) {
		a.logger.Debug("Subscriber added", zap.String("key", key), zap.String("subscriber", subscriber))
		a.updateSubscriptionGauge()
	}
	return &rpc.KVResponse{Status: rpc.StatusSubscribed, Key: key}
}

// ClientUnsubscribe forwards a client's unsubscribe to the controller,
// which removes the subscription from every running node
func (a *Agent) ClientUnsubscribe(ctx context.Context, key, subscriber string) error {
	if err := a.controller.BroadcastUnsubscribe(ctx, key, subscriber); err != nil {
		return errors.NodeUnreachable("controller", err)
	}
	return nil
}

// Unsubscribe removes a subscription locally
func (a *Agent) Unsubscribe(key, subscriber string) {
	if a.subs.Remove(key, subscriber) {
		a.updateSubscriptionGauge()
	}
}

// Replicate applies a write forwarded by a coordinator. When the write
// carries the client's callback address the client is asked to confirm it.
func (a *Agent) Replicate(ctx context.Context, req *rpc.ReplicateRequest) error {
	v := a.view()
	if err := a.apply(v.store, req.Key, req.Value); err != nil {
		return errors.InternalError("failed to apply replicated write", err)
	}

	if req.Client == "" || !a.cfg.Integrity.ConfirmWrites || a.checker == nil {
		return nil
	}
	msg := *req
	a.submitCallback("confirm_write", func(ctx context.Context) error {
		correct, mismatch, err := a.checker.ConfirmWrite(ctx, &msg)
		if err != nil {
			a.logger.Debug("Write confirmation skipped, client unreachable",
				zap.String("client", msg.Client),
				zap.Error(err))
			return nil
		}
		if !mismatch {
			return nil
		}
		return a.apply(a.view().store, msg.Key, correct)
	})
	return nil
}

// Ingest stores a batch shipped by a range transfer
func (a *Agent) Ingest(entries []rpc.Entry) error {
	store := a.view().store
	for _, e := range entries {
		if err := a.apply(store, e.Key, e.Value); err != nil {
			return errors.InternalError("failed to ingest entry", err)
		}
	}
	return nil
}

func (a *Agent) apply(store storage.Engine, key, value string) error {
	if value == "" {
		if err := store.Delete(key); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			return err
		}
		return nil
	}
	_, err := store.Put(key, value)
	return err
}

// Heartbeat answers a predecessor's probe and merges its subscriptions
func (a *Agent) Heartbeat(req *rpc.HeartbeatRequest) *rpc.HeartbeatResponse {
	if len(req.Subscriptions) > 0 {
		if added := a.subs.Merge(req.Subscriptions); added > 0 {
			a.logger.Debug("Merged subscriptions",
				zap.String("from", req.From.String()),
				zap.Int("added", added))
			a.updateSubscriptionGauge()
		}
	}

	resp := &rpc.HeartbeatResponse{}
	if r := a.Ring(); r != nil {
		resp.RingVersion = r.Version()
	}
	return resp
}

// VerifyRead checks a value another replica served for key against the
// local copy. Only a node whose read window holds key can verify it.
func (a *Agent) VerifyRead(ctx context.Context, req *rpc.VerifyReadRequest) (*rpc.VerifyReadResponse, error) {
	v := a.view()
	if !v.started || v.ring == nil {
		return nil, errors.NotInitialized()
	}
	rng, ok := v.ring.Range(a.self)
	if !ok || !rng.IsInReadRange(ring.Hash(req.Key)) {
		return nil, errors.InvalidArgument("node does not replicate key "+req.Key, nil)
	}

	local, err := v.store.Get(req.Key)
	found := err == nil
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.InternalError("failed to read key", err)
	}
	return a.checker.VerifyRead(req, local, found), nil
}

func (a *Agent) notify(key, value string) {
	subscribers := a.subs.Subscribers(key)
	if len(subscribers) == 0 {
		return
	}
	n := rpc.Notification{Key: key, Value: value, Deleted: value == ""}
	for _, sub := range subscribers {
		sub := sub
		a.submitCallback("notify", func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, a.cfg.Replication.Timeout)
			defer cancel()
			msg := n
			return a.peers.Notify(ctx, sub, &msg)
		})
	}
}

func (a *Agent) submitCallback(kind string, fn func(ctx context.Context) error) {
	a.callbacks.TrySubmit(workerpool.Task{
		ID:   uuid.NewString(),
		Kind: kind,
		Fn:   fn,
	})
}

func (a *Agent) updateSubscriptionGauge() {
	if a.metrics != nil {
		a.metrics.Subscriptions.Set(float64(a.subs.Len()))
	}
}

func (a *Agent) observe(op string, status rpc.Status, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RequestsTotal.WithLabelValues(op, string(status)).Inc()
	a.metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
