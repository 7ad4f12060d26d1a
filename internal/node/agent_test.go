package node

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	host1 = ring.NodeID{Address: "127.0.0.1", Port: 50000}
	host2 = ring.NodeID{Address: "127.0.0.1", Port: 50001}
	host3 = ring.NodeID{Address: "127.0.0.1", Port: 50002}
	host4 = ring.NodeID{Address: "127.0.0.1", Port: 50003}
	host5 = ring.NodeID{Address: "127.0.0.1", Port: 50004}
)

type replicateCall struct {
	to  ring.NodeID
	req rpc.ReplicateRequest
}

type notifyCall struct {
	subscriber string
	n          rpc.Notification
}

type fakePeers struct {
	mu         sync.Mutex
	replicated []replicateCall
	ingested   map[ring.NodeID][]rpc.Entry
	ingestErr  error
	notified   []notifyCall
	confirm    *rpc.ConfirmWriteResponse
	confirmErr error
}

func newFakePeers() *fakePeers {
	return &fakePeers{ingested: make(map[ring.NodeID][]rpc.Entry)}
}

func (f *fakePeers) Replicate(ctx context.Context, to ring.NodeID, req *rpc.ReplicateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replicated = append(f.replicated, replicateCall{to: to, req: *req})
	return nil
}

func (f *fakePeers) Ingest(ctx context.Context, to ring.NodeID, entries []rpc.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return f.ingestErr
	}
	f.ingested[to] = append(f.ingested[to], entries...)
	return nil
}

func (f *fakePeers) Heartbeat(ctx context.Context, to ring.NodeID, req *rpc.HeartbeatRequest) error {
	return nil
}

func (f *fakePeers) Notify(ctx context.Context, subscriber string, n *rpc.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, notifyCall{subscriber: subscriber, n: *n})
	return nil
}

func (f *fakePeers) ConfirmWrite(ctx context.Context, client string, req *rpc.ConfirmWriteRequest) (*rpc.ConfirmWriteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.confirm == nil {
		return &rpc.ConfirmWriteResponse{Known: false}, nil
	}
	return f.confirm, nil
}

func (f *fakePeers) replicateCalls() []replicateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]replicateCall(nil), f.replicated...)
}

func (f *fakePeers) notifyCalls() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifyCall(nil), f.notified...)
}

func (f *fakePeers) ingestedBy(id ring.NodeID) []rpc.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpc.Entry(nil), f.ingested[id]...)
}

type fakeController struct {
	mu          sync.Mutex
	dead        []ring.NodeID
	compromised []ring.NodeID
	unsubscribe []string
}

func (f *fakeController) ReportDead(ctx context.Context, suspect ring.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, suspect)
	return nil
}

func (f *fakeController) ReportCompromised(ctx context.Context, suspect ring.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compromised = append(f.compromised, suspect)
	return nil
}

func (f *fakeController) BroadcastUnsubscribe(ctx context.Context, key, subscriber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribe = append(f.unsubscribe, key+"|"+subscriber)
	return nil
}

func (f *fakeController) compromisedNodes() []ring.NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ring.NodeID(nil), f.compromised...)
}

type testAgent struct {
	*Agent
	engine     *storage.MemoryEngine
	peers      *fakePeers
	controller *fakeController
	metrics    *metrics.NodeMetrics
}

func newTestAgent(t *testing.T, self ring.NodeID) *testAgent {
	t.Helper()

	cfg := config.DefaultNodeConfig()
	cfg.Heartbeat.Interval = time.Hour
	cfg.Transfer.BatchSize = 2
	cfg.Replication.Timeout = time.Second
	cfg.Integrity.Timeout = time.Second

	engine := storage.NewMemoryEngine()
	peers := newFakePeers()
	ctrl := &fakeController{}
	m := metrics.NewNodeMetrics(prometheus.NewRegistry())

	a := NewAgent(Options{
		Self:       self,
		Engine:     engine,
		Peers:      peers,
		Controller: ctrl,
		Config:     cfg,
		Metrics:    m,
		Logger:     zap.NewNop(),
	})
	t.Cleanup(a.Shutdown)

	return &testAgent{Agent: a, engine: engine, peers: peers, controller: ctrl, metrics: m}
}

func startedAgent(t *testing.T, self ring.NodeID, members ...ring.NodeID) *testAgent {
	t.Helper()
	a := newTestAgent(t, self)
	require.NoError(t, a.Init(10, storage.StrategyLRU, ring.New(members...).Snapshot()))
	require.NoError(t, a.Start())
	return a
}

// keyOwnedBy finds a key whose coordinator on r is id
func keyOwnedBy(t *testing.T, r *ring.Ring, id ring.NodeID) string {
	t.Helper()
	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if c, _ := r.Coordinator(ring.Hash(key)); c == id {
			return key
		}
	}
	t.Fatalf("no key owned by %s", id)
	return ""
}

func TestAgent_Lifecycle(t *testing.T) {
	a := newTestAgent(t, host1)

	resp := a.Put(context.Background(), "k", "v", "")
	assert.Equal(t, rpc.StatusStopped, resp.Status)

	assert.True(t, errors.Is(a.Start(), errors.ErrCodeNotInitialized))

	snap := ring.New(host1, host2, host3).Snapshot()
	require.NoError(t, a.Init(10, "LFU", snap))

	health := a.Health()
	assert.True(t, health.Initialized)
	assert.False(t, health.Started, "init leaves the node stopped")

	require.NoError(t, a.Start())
	assert.True(t, a.Health().Started)

	a.Stop()
	resp = a.Get(context.Background(), "k")
	assert.Equal(t, rpc.StatusStopped, resp.Status)
}

func TestAgent_InitRejections(t *testing.T) {
	a := newTestAgent(t, host1)

	err := a.Init(10, "MRU", ring.New(host1, host2, host3).Snapshot())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))

	snap := ring.New(host1, host2, host3).Snapshot()
	snap.Entries[0].End = snap.Entries[1].End
	err = a.Init(10, "LRU", snap)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidSnapshot))

	assert.False(t, a.Health().Initialized)
}

func TestAgent_PutRoutesAndReplicates(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	r := a.Ring()

	own := keyOwnedBy(t, r, host1)
	resp := a.Put(context.Background(), own, "v1", "127.0.0.1:7000")
	assert.Equal(t, rpc.StatusPutSuccess, resp.Status)

	resp = a.Put(context.Background(), own, "v2", "")
	assert.Equal(t, rpc.StatusPutUpdate, resp.Status)

	value, err := a.engine.Get(own)
	require.NoError(t, err)
	assert.Equal(t, "v2", value)

	backups := r.BackupSet(ring.Hash(own))
	require.Eventually(t, func() bool { return len(a.peers.replicateCalls()) == 4 }, time.Second, time.Millisecond)

	targets := map[ring.NodeID]int{}
	for _, call := range a.peers.replicateCalls() {
		targets[call.to]++
		assert.Equal(t, host1, call.req.Coordinator)
	}
	assert.Equal(t, map[ring.NodeID]int{backups[0]: 2, backups[1]: 2}, targets)

	foreign := keyOwnedBy(t, r, host2)
	resp = a.Put(context.Background(), foreign, "v", "")
	assert.Equal(t, rpc.StatusNotResponsible, resp.Status)
	require.NotNil(t, resp.Ring)
	assert.Len(t, resp.Ring.Entries, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.RequestsTotal.WithLabelValues("put", string(rpc.StatusPutSuccess))))
}

func TestAgent_Delete(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	key := keyOwnedBy(t, a.Ring(), host1)

	resp := a.Put(context.Background(), key, "", "")
	assert.Equal(t, rpc.StatusDeleteError, resp.Status, "deleting a missing key")

	a.Put(context.Background(), key, "v", "")
	resp = a.Put(context.Background(), key, "", "")
	assert.Equal(t, rpc.StatusDeleteSuccess, resp.Status)

	_, err := a.engine.Get(key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// only the successful put and delete were replicated
	require.Eventually(t, func() bool { return len(a.peers.replicateCalls()) == 4 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, a.peers.replicateCalls(), 4)
}

func TestAgent_WriteLock(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	key := keyOwnedBy(t, a.Ring(), host1)

	a.LockWrite()
	assert.True(t, a.Health().WriteLocked)

	resp := a.Put(context.Background(), key, "v", "")
	assert.Equal(t, rpc.StatusWriteLock, resp.Status)

	// reads are unaffected
	assert.Equal(t, rpc.StatusGetError, a.Get(context.Background(), key).Status)

	a.UnlockWrite()
	resp = a.Put(context.Background(), key, "v", "")
	assert.Equal(t, rpc.StatusPutSuccess, resp.Status)
}

func TestAgent_GetUsesReadWindow(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3, host4, host5)
	r := a.Ring()
	rng, _ := r.Range(host1)

	var readable, foreign string
	for i := 0; i < 10000 && (readable == "" || foreign == ""); i++ {
		key := fmt.Sprintf("key-%d", i)
		h := ring.Hash(key)
		switch {
		case rng.IsInReadRange(h) && !rng.IsInRange(h) && readable == "":
			readable = key
		case !rng.IsInReadRange(h) && foreign == "":
			foreign = key
		}
	}
	require.NotEmpty(t, readable)
	require.NotEmpty(t, foreign)

	_, err := a.engine.Put(readable, "replica")
	require.NoError(t, err)

	resp := a.Get(context.Background(), readable)
	assert.Equal(t, rpc.StatusGetSuccess, resp.Status)
	assert.Equal(t, "replica", resp.Value)

	resp = a.Get(context.Background(), foreign)
	assert.Equal(t, rpc.StatusNotResponsible, resp.Status)
	assert.NotNil(t, resp.Ring)

	// a replica may not accept writes for keys it only reads
	assert.Equal(t, rpc.StatusNotResponsible, a.Put(context.Background(), readable, "x", "").Status)
}

func TestAgent_ApplyRingIgnoresStale(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)

	grown := ring.New(host1, host2, host3)
	_, err := grown.AddNode(host4)
	require.NoError(t, err)

	applied, err := a.ApplyRing(grown.Snapshot())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 4, a.Ring().Size())

	applied, err = a.ApplyRing(ring.New(host1, host2, host3).Snapshot())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 4, a.Ring().Size())
	assert.Equal(t, grown.Version(), a.Health().RingVersion)

	bad := grown.Snapshot()
	bad.Entries = append(bad.Entries, bad.Entries[0])
	_, err = a.ApplyRing(bad)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidSnapshot))
}

func TestAgent_ApplyRingRetargetsHeartbeat(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	r := a.Ring()
	successor, _ := r.Successor(host1)
	require.NotNil(t, a.heartbeat.Current())
	assert.Equal(t, successor, a.heartbeat.Current().Target())

	grown := r.Clone()
	_, err := grown.AddNode(host4)
	require.NoError(t, err)
	_, err = a.ApplyRing(grown.Snapshot())
	require.NoError(t, err)

	want, _ := grown.Successor(host1)
	assert.Equal(t, want, a.heartbeat.Current().Target())
}

func TestAgent_MoveAndCopyData(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	r := a.Ring()
	rng, _ := r.Range(host1)
	primary := rng.Primary()

	inside, outside := 0, 0
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, err := a.engine.Put(key, "v")
		require.NoError(t, err)
		if primary.Contains(ring.Hash(key)) {
			inside++
		} else {
			outside++
		}
	}
	require.NotZero(t, inside)

	n, err := a.CopyData(context.Background(), host4, primary)
	require.NoError(t, err)
	assert.Equal(t, inside, n)
	assert.Len(t, a.peers.ingestedBy(host4), inside)
	assert.Equal(t, 40, a.engine.Len(), "copy keeps local data")

	n, err = a.MoveData(context.Background(), host5, primary)
	require.NoError(t, err)
	assert.Equal(t, inside, n)
	assert.Len(t, a.peers.ingestedBy(host5), inside)
	assert.Equal(t, outside, a.engine.Len(), "move deletes sent keys")

	for _, e := range a.peers.ingestedBy(host5) {
		assert.True(t, primary.Contains(ring.Hash(e.Key)))
	}
	assert.Equal(t, float64(inside), testutil.ToFloat64(a.metrics.TransferredKeys.WithLabelValues("move")))
}

func TestAgent_MoveFailureKeepsData(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	for i := 0; i < 10; i++ {
		_, err := a.engine.Put(fmt.Sprintf("key-%d", i), "v")
		require.NoError(t, err)
	}
	a.peers.ingestErr = fmt.Errorf("connection refused")

	full := ring.Interval{Start: host1.Hash(), End: host1.Hash()}
	_, err := a.MoveData(context.Background(), host4, full)
	require.Error(t, err)
	assert.Equal(t, 10, a.engine.Len())

	_, err = a.CopyData(context.Background(), host1, full)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
}

func TestAgent_DeleteAllData(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	key := keyOwnedBy(t, a.Ring(), host1)
	a.Put(context.Background(), key, "v", "")

	require.NoError(t, a.DeleteAllData())
	assert.Equal(t, 0, a.engine.Len())
	assert.Equal(t, rpc.StatusGetError, a.Get(context.Background(), key).Status)
}

func TestAgent_SubscriptionsAndNotifications(t *testing.T) {
	a := startedAgent(t, host1, host1, host2, host3)
	r := a.Ring()
	key := keyOwnedBy(t, r, host1)

	resp := a.Subscribe(context.Background(), key, "127.0.0.1:7000")
	assert.Equal(t, rpc.StatusSubscribed, resp.Status)

	resp = a.Subscribe(context.Background(), keyOwnedBy(t, r, host2), "127.0.0.1:7000")
	assert.Equal(t, rpc.StatusNotResponsible, resp.Status)

	a.Put(context.Background(), key, "v", "")
	a.Put(context.Background(), key, "", "")

	require.Eventually(t, func() bool { return len(a.peers.notifyCalls()) == 2 }, time.Second, time.Millisecond)
	calls := a.peers.notifyCalls()
	assert.Equal(t, "127.0.0.1:7000", calls[0].subscriber)
	var sawDelete bool
	for _, c := range calls {
		if c.n.Deleted {
			sawDelete = true
		}
	}
	assert.True(t, sawDelete)

	require.NoError(t, a.ClientUnsubscribe(context.Background(), key, "127.0.0.1:7000"))
	assert.Equal(t, []string{key + "|127.0.0.1:7000"}, a.controller.unsubscribe)

	a.Unsubscribe(key, "127.0.0.1:7000")
	assert.Empty(t, a.subs.Subscribers(key))
}

func TestAgent_HeartbeatMergesSubscriptions(t *testing.T) {
	a := startedAgent(t, host2, host1, host2, host3)

	resp := a.Heartbeat(&rpc.HeartbeatRequest{
		From:          host1,
		Subscriptions: map[string][]string{"k": {"127.0.0.1:7000", "127.0.0.1:7001"}},
	})
	assert.Equal(t, a.Ring().Version(), resp.RingVersion)
	assert.Equal(t, []string{"127.0.0.1:7000", "127.0.0.1:7001"}, a.subs.Subscribers("k"))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.metrics.Subscriptions))
}

func TestAgent_ReplicateAndIngest(t *testing.T) {
	a := startedAgent(t, host2, host1, host2, host3)

	require.NoError(t, a.Replicate(context.Background(), &rpc.ReplicateRequest{Key: "k", Value: "v", Coordinator: host1}))
	v, err := a.engine.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, a.Replicate(context.Background(), &rpc.ReplicateRequest{Key: "k", Value: "", Coordinator: host1}))
	_, err = a.engine.Get("k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// tombstone for a key never seen is not an error
	require.NoError(t, a.Replicate(context.Background(), &rpc.ReplicateRequest{Key: "missing", Coordinator: host1}))

	require.NoError(t, a.Ingest([]rpc.Entry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}))
	assert.Equal(t, 2, a.engine.Len())
}

func TestAgent_ReplicateConfirmMismatch(t *testing.T) {
	a := startedAgent(t, host2, host1, host2, host3)
	a.peers.confirm = &rpc.ConfirmWriteResponse{Known: true, Match: false, Value: "real"}

	require.NoError(t, a.Replicate(context.Background(), &rpc.ReplicateRequest{
		Key:         "k",
		Value:       "forged",
		Coordinator: host1,
		Client:      "127.0.0.1:7000",
	}))

	require.Eventually(t, func() bool {
		v, err := a.engine.Get("k")
		return err == nil && v == "real"
	}, time.Second, time.Millisecond)
	assert.Equal(t, []ring.NodeID{host1}, a.controller.compromisedNodes())
}

func TestAgent_ReplicateUnreachableClient(t *testing.T) {
	a := startedAgent(t, host2, host1, host2, host3)
	a.peers.confirmErr = fmt.Errorf("connection refused")

	require.NoError(t, a.Replicate(context.Background(), &rpc.ReplicateRequest{
		Key: "k", Value: "v", Coordinator: host1, Client: "127.0.0.1:7000",
	}))
	time.Sleep(20 * time.Millisecond)

	v, err := a.engine.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Empty(t, a.controller.compromisedNodes())
}

func TestAgent_VerifyRead(t *testing.T) {
	a := startedAgent(t, host2, host1, host2, host3)
	_, err := a.engine.Put("k", "v")
	require.NoError(t, err)

	resp, err := a.VerifyRead(context.Background(), &rpc.VerifyReadRequest{Key: "k", Value: "v", Found: true, Suspect: host1})
	require.NoError(t, err)
	assert.True(t, resp.Consistent)

	resp, err = a.VerifyRead(context.Background(), &rpc.VerifyReadRequest{Key: "k", Value: "bad", Found: true, Suspect: host1})
	require.NoError(t, err)
	assert.False(t, resp.Consistent)
	assert.Equal(t, "v", resp.Value)

	require.Eventually(t, func() bool { return len(a.controller.compromisedNodes()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, host1, a.controller.compromisedNodes()[0])
}

func TestAgent_ShutdownHook(t *testing.T) {
	a := newTestAgent(t, host1)
	done := make(chan struct{})
	a.onShutdown = func() { close(done) }

	a.Shutdown()
	a.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
}
