package handler

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/devrev/kvring/internal/client"
	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/controller"
	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/node"
	"github.com/devrev/kvring/internal/provision"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"github.com/devrev/kvring/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type recordingLink struct {
	mu   sync.Mutex
	dead []ring.NodeID
}

func (l *recordingLink) ReportDead(ctx context.Context, suspect ring.NodeID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dead = append(l.dead, suspect)
	return nil
}

func (l *recordingLink) ReportCompromised(ctx context.Context, suspect ring.NodeID) error {
	return nil
}

func (l *recordingLink) BroadcastUnsubscribe(ctx context.Context, key, subscriber string) error {
	return nil
}

// handlerSeed serves the ring straight from a controller handler
type handlerSeed struct {
	h *ControllerHandler
}

func (s handlerSeed) GetCluster(ctx context.Context) (*rpc.ClusterResponse, error) {
	return s.h.GetCluster(ctx, &rpc.Empty{})
}

type testCluster struct {
	handler *ControllerHandler
	ctrl    *controller.Controller
	nodes   *client.NodeClient
}

// newTestCluster runs one agent per inventory entry on in-memory
// listeners and a controller that reaches them through the node client
func newTestCluster(t *testing.T, size int) *testCluster {
	t.Helper()
	logger := zap.NewNop()

	inventory := make([]ring.NodeID, size)
	listeners := make(map[string]*bufconn.Listener, size)
	for i := range inventory {
		inventory[i] = ring.NodeID{Address: "127.0.0.1", Port: 51000 + i}
		listeners[inventory[i].String()] = bufconn.Listen(1 << 20)
	}

	nodes := client.NewNodeClient(2*time.Second, 5*time.Second, logger,
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			lis, ok := listeners[addr]
			if !ok {
				return nil, fmt.Errorf("no listener for %s", addr)
			}
			return lis.DialContext(ctx)
		}))
	t.Cleanup(func() { nodes.Close() })

	for _, id := range inventory {
		cfg := config.DefaultNodeConfig()
		cfg.Heartbeat.Interval = time.Hour
		cfg.Integrity.ConfirmWrites = false

		agent := node.NewAgent(node.Options{
			Self:       id,
			Engine:     storage.NewMemoryEngine(),
			Peers:      nodes,
			Controller: &recordingLink{},
			Config:     cfg,
			Logger:     logger,
		})

		srv := grpc.NewServer()
		rpc.RegisterNodeAgentServer(srv, NewNodeHandler(agent, logger))
		lis := listeners[id.String()]
		go func() { _ = srv.Serve(lis) }()
		t.Cleanup(srv.Stop)
		t.Cleanup(agent.Shutdown)
	}

	ctrl := controller.New(controller.Deps{
		Config: config.ClusterConfig{
			RPCTimeout:        2 * time.Second,
			ReadyTimeout:      2 * time.Second,
			ReadyPollInterval: 10 * time.Millisecond,
		},
		Inventory: inventory,
		Nodes:     nodes,
		Launcher:  provision.NewStaticLauncher(0, logger),
		State:     store.NewMemoryStateStore(),
		Metrics:   metrics.NewControllerMetrics(prometheus.NewRegistry()),
		Logger:    logger,
	})
	t.Cleanup(ctrl.Wait)

	return &testCluster{
		handler: NewControllerHandler(ctrl, logger),
		ctrl:    ctrl,
		nodes:   nodes,
	}
}

func (c *testCluster) kvClient(t *testing.T) *client.KVClient {
	t.Helper()
	kv, err := client.NewKVClient(client.KVOptions{
		Nodes: c.nodes,
		Seed:  handlerSeed{h: c.handler},
	})
	require.NoError(t, err)
	return kv
}

func TestCluster_InitializeStartAndServe(t *testing.T) {
	cluster := newTestCluster(t, 4)
	ctx := context.Background()

	resp, err := cluster.handler.Initialize(ctx, &rpc.InitializeRequest{Size: 3, CacheSize: 16, Strategy: "LFU"})
	require.NoError(t, err)
	assert.Len(t, resp.Running, 3)
	assert.Len(t, resp.Idle, 1)

	kv := cluster.kvClient(t)

	// nodes stay closed to clients until the cluster is started
	status, err := kv.Put(ctx, "alpha", "1")
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusStopped, status)

	_, err = cluster.handler.Start(ctx, &rpc.Empty{})
	require.NoError(t, err)

	status, err = kv.Put(ctx, "alpha", "1")
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusPutSuccess, status)

	require.Eventually(t, func() bool {
		for i := 0; i < 6; i++ {
			value, found, err := kv.Get(ctx, "alpha")
			if err != nil || !found || value != "1" {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	status, err = kv.Put(ctx, "alpha", "2")
	require.NoError(t, err)
	assert.Equal(t, rpc.StatusPutUpdate, status)
}

func TestCluster_AddNodeKeepsKeysReadable(t *testing.T) {
	cluster := newTestCluster(t, 4)
	ctx := context.Background()

	_, err := cluster.handler.Initialize(ctx, &rpc.InitializeRequest{Size: 3})
	require.NoError(t, err)
	_, err = cluster.handler.Start(ctx, &rpc.Empty{})
	require.NoError(t, err)

	kv := cluster.kvClient(t)
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		status, err := kv.Put(ctx, keys[i], "v"+keys[i])
		require.NoError(t, err)
		require.Equal(t, rpc.StatusPutSuccess, status)
	}

	// let asynchronous replication settle before the ring changes
	require.Eventually(t, func() bool {
		for _, key := range keys {
			for _, replica := range kv.Ring().ReplicaSet(ring.Hash(key)) {
				resp, err := cluster.nodes.Get(ctx, replica, key)
				if err != nil || resp.Status != rpc.StatusGetSuccess {
					return false
				}
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := cluster.handler.AddNode(ctx, &rpc.AddNodeRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Running, 4)
	assert.Empty(t, resp.Idle)
	assert.Equal(t, resp.Ring.Version, cluster.ctrl.Ring().Version)

	for _, key := range keys {
		value, found, err := kv.Get(ctx, key)
		require.NoError(t, err, key)
		assert.True(t, found, key)
		assert.Equal(t, "v"+key, value)
	}
}

func TestControllerHandler_Reports(t *testing.T) {
	cluster := newTestCluster(t, 3)
	ctx := context.Background()

	_, err := cluster.handler.ReportDead(ctx, &rpc.NodeReport{})
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	// an unnamed reporter cannot stand in as a second witness
	anonymous := &rpc.NodeReport{Suspect: ring.NodeID{Address: "127.0.0.1", Port: 51000}}
	_, err = cluster.handler.ReportDead(ctx, anonymous)
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))
	_, err = cluster.handler.ReportCompromised(ctx, anonymous)
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	resp, err := cluster.handler.ReportDead(ctx, &rpc.NodeReport{
		Suspect:  ring.NodeID{Address: "127.0.0.1", Port: 51000},
		Reporter: ring.NodeID{Address: "127.0.0.1", Port: 51001},
	})
	require.NoError(t, err)
	assert.Equal(t, controller.ActionIgnored, resp.Action)

	_, err = cluster.handler.BroadcastUnsubscribe(ctx, &rpc.SubscriptionRequest{Key: "alpha"})
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	_, err = cluster.handler.RemoveNode(ctx, &rpc.RemoveNodeRequest{Node: "not-a-node"})
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	_, err = cluster.handler.Start(ctx, &rpc.Empty{})
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeNotInitialized))
}
