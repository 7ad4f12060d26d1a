package client

import (
	"context"

	"github.com/devrev/kvring/internal/rpc"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const defaultWriteLogSize = 10000

// NotifyFunc receives key change notifications
type NotifyFunc func(n rpc.Notification)

// CallbackServer answers node callbacks on behalf of a KV client: change
// notifications for subscribed keys and confirmations of the client's
// own writes.
type CallbackServer struct {
	writes   *lru.Cache
	onNotify NotifyFunc
	logger   *zap.Logger
}

// NewCallbackServer creates a callback server remembering the last value
// written for up to size keys
func NewCallbackServer(size int, onNotify NotifyFunc, logger *zap.Logger) (*CallbackServer, error) {
	if size <= 0 {
		size = defaultWriteLogSize
	}
	writes, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CallbackServer{
		writes:   writes,
		onNotify: onNotify,
		logger:   logger,
	}, nil
}

// RecordWrite remembers value as the client's last write of key.
// An empty value records a delete.
func (s *CallbackServer) RecordWrite(key, value string) {
	s.writes.Add(key, value)
}

// Notify handles a change notification
func (s *CallbackServer) Notify(ctx context.Context, n *rpc.Notification) (*rpc.Ack, error) {
	s.logger.Debug("Key changed",
		zap.String("key", n.Key),
		zap.Bool("deleted", n.Deleted))
	if s.onNotify != nil {
		s.onNotify(*n)
	}
	return &rpc.Ack{}, nil
}

// ConfirmWrite tells a replica whether the coordinator's value matches
// what this client wrote
func (s *CallbackServer) ConfirmWrite(ctx context.Context, req *rpc.ConfirmWriteRequest) (*rpc.ConfirmWriteResponse, error) {
	v, ok := s.writes.Get(req.Key)
	if !ok {
		return &rpc.ConfirmWriteResponse{Known: false}, nil
	}
	value := v.(string)
	if value != req.Value {
		s.logger.Warn("Coordinator stored a different value",
			zap.String("key", req.Key),
			zap.String("coordinator", req.Coordinator.String()))
	}
	return &rpc.ConfirmWriteResponse{Known: true, Match: value == req.Value, Value: value}, nil
}
