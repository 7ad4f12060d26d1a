package client

import (
	"sync"

	"github.com/devrev/kvring/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// connPool caches one client connection per target. Connections are
// created lazily and reconnect on their own, so a cached entry stays
// usable after the remote end restarts.
type connPool struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn
	opts   []grpc.DialOption
	logger *zap.Logger
}

func newConnPool(logger *zap.Logger, opts ...grpc.DialOption) *connPool {
	return &connPool{
		conns:  make(map[string]*grpc.ClientConn),
		opts:   opts,
		logger: logger,
	}
}

// get retrieves or creates the connection to target
func (p *connPool) get(target string) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.conns[target]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[target]; ok {
		return conn, nil
	}

	conn, err := rpc.Dial(target, p.opts...)
	if err != nil {
		return nil, err
	}
	p.conns[target] = conn

	p.logger.Debug("Created gRPC client", zap.String("target", target))
	return conn, nil
}

// Close closes all connections
func (p *connPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for target, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close connection",
				zap.String("target", target),
				zap.Error(err))
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
	return nil
}
