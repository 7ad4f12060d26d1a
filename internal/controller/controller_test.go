package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/devrev/kvring/internal/config"
	kverrors "github.com/devrev/kvring/internal/errors"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/model"
	"github.com/devrev/kvring/internal/provision"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/store"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var inventory = []ring.NodeID{
	{Address: "127.0.0.1", Port: 50000},
	{Address: "127.0.0.1", Port: 50001},
	{Address: "127.0.0.1", Port: 50002},
	{Address: "127.0.0.1", Port: 50003},
	{Address: "127.0.0.1", Port: 50004},
	{Address: "127.0.0.1", Port: 50005},
	{Address: "127.0.0.1", Port: 50006},
}

type transfer struct {
	mode   string
	source ring.NodeID
	dest   ring.NodeID
	rng    ring.Interval
	ok     bool
	locked bool
}

// fakeNodes records every command and fails calls to nodes marked down
type fakeNodes struct {
	mu        sync.Mutex
	down      map[ring.NodeID]bool
	calls     map[ring.NodeID][]string
	locked    map[ring.NodeID]bool
	inits     map[ring.NodeID]*rpc.InitRequest
	rings     map[ring.NodeID]ring.Snapshot
	transfers []transfer
}

func newFakeNodes() *fakeNodes {
	f := &fakeNodes{down: make(map[ring.NodeID]bool)}
	f.reset()
	return f
}

func (f *fakeNodes) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[ring.NodeID][]string)
	f.locked = make(map[ring.NodeID]bool)
	f.inits = make(map[ring.NodeID]*rpc.InitRequest)
	f.rings = make(map[ring.NodeID]ring.Snapshot)
	f.transfers = nil
}

func (f *fakeNodes) setDown(node ring.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[node] = true
}

func (f *fakeNodes) callsTo(node ring.NodeID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[node]...)
}

func (f *fakeNodes) count(node ring.NodeID, name string) int {
	n := 0
	for _, c := range f.callsTo(node) {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeNodes) transferLog() []transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transfer(nil), f.transfers...)
}

// callLocked records name and reports whether node answers
func (f *fakeNodes) callLocked(node ring.NodeID, name string) error {
	f.calls[node] = append(f.calls[node], name)
	if f.down[node] {
		return kverrors.NodeUnreachable(node.String(), errors.New("connection refused"))
	}
	return nil
}

func (f *fakeNodes) call(node ring.NodeID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callLocked(node, name)
}

func (f *fakeNodes) Init(_ context.Context, node ring.NodeID, req *rpc.InitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.callLocked(node, "Init"); err != nil {
		return err
	}
	f.inits[node] = req
	f.rings[node] = req.Ring
	return nil
}

func (f *fakeNodes) Start(_ context.Context, node ring.NodeID) error {
	return f.call(node, "Start")
}

func (f *fakeNodes) Stop(_ context.Context, node ring.NodeID) error {
	return f.call(node, "Stop")
}

func (f *fakeNodes) Shutdown(_ context.Context, node ring.NodeID) error {
	return f.call(node, "Shutdown")
}

func (f *fakeNodes) LockWrite(_ context.Context, node ring.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.callLocked(node, "LockWrite"); err != nil {
		return err
	}
	f.locked[node] = true
	return nil
}

func (f *fakeNodes) UnlockWrite(_ context.Context, node ring.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.callLocked(node, "UnlockWrite"); err != nil {
		return err
	}
	f.locked[node] = false
	return nil
}

func (f *fakeNodes) transfer(mode string, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.callLocked(source, mode)
	if err == nil && f.down[dest] {
		err = kverrors.NodeUnreachable(dest.String(), errors.New("connection refused"))
	}
	f.transfers = append(f.transfers, transfer{
		mode:   mode,
		source: source,
		dest:   dest,
		rng:    rng,
		ok:     err == nil,
		locked: f.locked[source],
	})
	if err != nil {
		return 0, err
	}
	return 10, nil
}

func (f *fakeNodes) MoveData(_ context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	return f.transfer("move", source, dest, rng)
}

func (f *fakeNodes) CopyData(_ context.Context, source, dest ring.NodeID, rng ring.Interval) (int, error) {
	return f.transfer("copy", source, dest, rng)
}

func (f *fakeNodes) ApplyRing(_ context.Context, node ring.NodeID, snap ring.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.callLocked(node, "ApplyRing"); err != nil {
		return err
	}
	f.rings[node] = snap
	return nil
}

func (f *fakeNodes) DeleteAllData(_ context.Context, node ring.NodeID) error {
	return f.call(node, "DeleteAllData")
}

func (f *fakeNodes) HealthCheck(_ context.Context, node ring.NodeID) (*rpc.HealthResponse, error) {
	if err := f.call(node, "HealthCheck"); err != nil {
		return nil, err
	}
	return &rpc.HealthResponse{Node: node, Initialized: true}, nil
}

func (f *fakeNodes) Unsubscribe(_ context.Context, node ring.NodeID, key, subscriber string) error {
	return f.call(node, "Unsubscribe:"+key+":"+subscriber)
}

type testController struct {
	*Controller
	nodes   *fakeNodes
	state   *store.MemoryStateStore
	metrics *metrics.ControllerMetrics
}

func newTestController(t *testing.T) *testController {
	t.Helper()
	return newTestControllerWithStore(t, store.NewMemoryStateStore())
}

func newTestControllerWithStore(t *testing.T, state *store.MemoryStateStore) *testController {
	t.Helper()

	nodes := newFakeNodes()
	m := metrics.NewControllerMetrics(prometheus.NewRegistry())
	c := New(Deps{
		Config: config.ClusterConfig{
			DefaultCacheSize:     100,
			DefaultCacheStrategy: "LRU",
			RPCTimeout:           time.Second,
			ReadyTimeout:         50 * time.Millisecond,
			ReadyPollInterval:    5 * time.Millisecond,
		},
		Inventory: inventory,
		Nodes:     nodes,
		Launcher:  provision.NewStaticLauncher(0, zap.NewNop()),
		State:     state,
		Metrics:   m,
		Logger:    zap.NewNop(),
	})
	// always take the first idle machine in inventory order
	c.pick = func(int) int { return 0 }

	return &testController{Controller: c, nodes: nodes, state: state, metrics: m}
}

func (tc *testController) currentRing(t *testing.T) *ring.Ring {
	t.Helper()
	r, err := ring.FromSnapshot(tc.Ring())
	require.NoError(t, err)
	return r
}

func findTransfer(log []transfer, dest ring.NodeID, rng ring.Interval) (transfer, bool) {
	for _, tr := range log {
		if tr.dest == dest && tr.rng == rng && tr.ok {
			return tr, true
		}
	}
	return transfer{}, false
}

func TestInitialize_Validation(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)

	err := tc.Initialize(ctx, 2, 0, "")
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidClusterSize))

	err = tc.Initialize(ctx, 3, 0, "MRU")
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	err = tc.Initialize(ctx, len(inventory)+1, 0, "")
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeNoIdleNodes))

	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	err = tc.Initialize(ctx, 3, 0, "")
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeAlreadyInitialized))
}

func TestInitialize_Fresh(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)

	require.NoError(t, tc.Initialize(ctx, 3, 50, "LFU"))

	cluster := tc.GetCluster()
	assert.Equal(t, inventory[:3], cluster.Running)
	assert.Equal(t, inventory[3:], cluster.Idle)
	assert.Len(t, cluster.Ring.Entries, 3)

	for _, node := range inventory[:3] {
		req := tc.nodes.inits[node]
		require.NotNil(t, req, node.String())
		assert.Equal(t, 50, req.CacheSize)
		assert.Equal(t, "LFU", req.Strategy)
		assert.Len(t, req.Ring.Entries, 3)
		assert.Equal(t, 1, tc.nodes.count(node, "DeleteAllData"))
		assert.Zero(t, tc.nodes.count(node, "Start"), "nodes stay stopped until Start")
	}

	require.NoError(t, tc.Start(ctx))
	for _, node := range inventory[:3] {
		assert.Equal(t, 1, tc.nodes.count(node, "Start"))
	}

	saved, err := tc.state.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, inventory[:3], saved.Running)
	assert.Equal(t, "LFU", saved.CacheStrategy)
	require.NotNil(t, saved.LastOperation)
	assert.Equal(t, model.OperationInitialize, saved.LastOperation.Type)
	assert.Equal(t, model.OperationCompleted, saved.LastOperation.Status)
}

func TestLifecycle_NotInitialized(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)

	_, err := tc.AddNode(ctx, 0, "")
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeNotInitialized))
	assert.True(t, kverrors.Is(tc.RemoveNode(ctx, 0), kverrors.ErrCodeNotInitialized))
	assert.True(t, kverrors.Is(tc.Shutdown(ctx), kverrors.ErrCodeNotInitialized))
	assert.True(t, kverrors.Is(tc.Start(ctx), kverrors.ErrCodeNotInitialized))
	assert.True(t, kverrors.Is(tc.Stop(ctx), kverrors.ErrCodeNotInitialized))
	assert.True(t, kverrors.Is(tc.BroadcastUnsubscribe(ctx, "k", "c"), kverrors.ErrCodeNotInitialized))
}

func TestAddNode_MovesObligations(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))

	expected := tc.currentRing(t)
	obligations, err := expected.AddNode(inventory[3])
	require.NoError(t, err)
	require.NotEmpty(t, obligations)
	tc.nodes.reset()

	added, err := tc.AddNode(ctx, 0, "")
	require.NoError(t, err)
	assert.Equal(t, inventory[3], added)

	log := tc.nodes.transferLog()
	require.Len(t, log, len(obligations))
	for _, ob := range obligations {
		tr, ok := findTransfer(log, added, ob.Range)
		require.True(t, ok, "missing transfer from %s", ob.Holder)
		assert.Equal(t, ob.Holder, tr.source)
		assert.Equal(t, "move", tr.mode)
		assert.True(t, tr.locked, "source is write-locked during the transfer")
	}
	for node, locked := range tc.nodes.locked {
		assert.False(t, locked, "%s left locked", node)
	}

	assert.Equal(t, 1, tc.nodes.count(added, "DeleteAllData"))
	assert.Equal(t, 1, tc.nodes.count(added, "Start"))
	for _, node := range inventory[:4] {
		assert.Equal(t, expected.Version(), tc.nodes.rings[node].Version, node.String())
	}

	assert.Equal(t, expected.Snapshot(), tc.Ring())
	assert.Equal(t, float64(4), testutil.ToFloat64(tc.metrics.RingSize))
	assert.Equal(t, model.OperationCompleted, tc.LastOperation().Status)
}

func TestAddNode_SmallRingCopiesFullRange(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	tc.commit(ring.New(inventory[0]), []ring.NodeID{inventory[0]})

	added, err := tc.AddNode(ctx, 0, "")
	require.NoError(t, err)

	log := tc.nodes.transferLog()
	require.Len(t, log, 1)
	assert.Equal(t, "copy", log[0].mode)
	assert.Equal(t, inventory[0], log[0].source)
	assert.Equal(t, added, log[0].dest)
	assert.True(t, log[0].rng.IsFull())
}

func TestAddNode_FallsBackToOtherReplica(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 4, 0, ""))

	expected := tc.currentRing(t)
	obligations, err := expected.AddNode(inventory[4])
	require.NoError(t, err)
	require.NotEmpty(t, obligations)

	failed := obligations[0]
	tc.nodes.setDown(failed.Holder)
	tc.nodes.reset()

	_, err = tc.AddNode(ctx, 0, "")
	require.NoError(t, err)

	tr, ok := findTransfer(tc.nodes.transferLog(), inventory[4], failed.Range)
	require.True(t, ok)
	assert.NotEqual(t, failed.Holder, tr.source)
	assert.Equal(t, "copy", tr.mode, "fallback replicas copy")
	assert.Equal(t, model.OperationCompleted, tc.LastOperation().Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(tc.metrics.TransfersTotal.WithLabelValues("move", "failed")))
}

func TestAddNode_PartialWhenNoReplicaAnswers(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 4, 0, ""))

	for _, node := range inventory[:4] {
		tc.nodes.setDown(node)
	}

	added, err := tc.AddNode(ctx, 0, "")
	require.NoError(t, err, "a partial rebalance is not fatal")
	assert.Equal(t, inventory[4], added)

	op := tc.LastOperation()
	assert.Equal(t, model.OperationDegraded, op.Status)
	assert.Positive(t, op.Partial)
	assert.Equal(t, float64(op.Partial), testutil.ToFloat64(tc.metrics.PartialRebalancesTotal))
	assert.Len(t, tc.GetCluster().Running, 5)
}

func TestRemoveNode(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 4, 0, ""))

	departing := inventory[1]
	expected := tc.currentRing(t)
	obligations, err := expected.RemoveNode(departing)
	require.NoError(t, err)
	require.NotEmpty(t, obligations)
	tc.nodes.reset()

	require.NoError(t, tc.RemoveNode(ctx, 1))

	log := tc.nodes.transferLog()
	for _, ob := range obligations {
		tr, ok := findTransfer(log, ob.Holder, ob.Range)
		require.True(t, ok, "survivor %s not backfilled", ob.Holder)
		assert.Equal(t, "copy", tr.mode)
		assert.NotEqual(t, departing, tr.source)
	}

	calls := tc.nodes.callsTo(departing)
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, []string{"LockWrite", "Stop", "UnlockWrite", "Shutdown"}, calls[len(calls)-4:])

	cluster := tc.GetCluster()
	assert.Equal(t, []ring.NodeID{inventory[0], inventory[2], inventory[3]}, cluster.Running)
	assert.Empty(t, cluster.LastRemoved, "only a shutdown remembers a node")
	assert.Equal(t, expected.Snapshot(), cluster.Ring)
}

func TestRemoveNode_Rejections(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	before := tc.Ring()

	err := tc.RemoveNode(ctx, len(inventory))
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidArgument))

	// idle machine
	assert.NoError(t, tc.RemoveNode(ctx, 5))

	err = tc.RemoveNode(ctx, 0)
	assert.True(t, kverrors.Is(err, kverrors.ErrCodeInvalidClusterSize))

	assert.Equal(t, before, tc.Ring())
	assert.Len(t, tc.GetCluster().Running, 3)
}

func TestShutdownAndReinitialize(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 5, 0, ""))
	before := tc.Ring().Version

	require.NoError(t, tc.Shutdown(ctx))

	cluster := tc.GetCluster()
	assert.Empty(t, cluster.Running)
	assert.Empty(t, cluster.Ring.Entries)
	assert.Greater(t, cluster.Ring.Version, before)
	stopped := cluster.Ring.Version
	survivor := inventory[0]
	assert.Equal(t, survivor.String(), cluster.LastRemoved)
	for _, node := range inventory[:5] {
		assert.Equal(t, 1, tc.nodes.count(node, "Shutdown"), node.String())
	}

	tc.nodes.reset()
	require.NoError(t, tc.Initialize(ctx, 4, 0, ""))

	cluster = tc.GetCluster()
	require.Len(t, cluster.Running, 4)
	assert.Equal(t, survivor, cluster.Running[0])
	assert.Empty(t, cluster.LastRemoved)

	assert.Zero(t, tc.nodes.count(survivor, "DeleteAllData"), "survivor keeps its data")
	require.NotNil(t, tc.nodes.inits[survivor])
	assert.Len(t, tc.nodes.inits[survivor].Ring.Entries, 1)
	assert.Greater(t, tc.nodes.inits[survivor].Ring.Version, stopped)
	assert.Greater(t, cluster.Ring.Version, stopped)

	full := 0
	for _, tr := range tc.nodes.transferLog() {
		if tr.rng.IsFull() {
			full++
			assert.Equal(t, "copy", tr.mode)
		}
	}
	assert.Equal(t, 2, full, "each of the first two joiners gets a full copy")

	for _, node := range cluster.Running {
		assert.Zero(t, tc.nodes.count(node, "Start"), node.String())
	}
}

func TestShutdownAndReinitialize_VersionMonotonic(t *testing.T) {
	ctx := context.Background()
	state := store.NewMemoryStateStore()
	tc := newTestControllerWithStore(t, state)

	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	for i := 0; i < 4; i++ {
		_, err := tc.AddNode(ctx, 0, "")
		require.NoError(t, err)
	}
	require.Len(t, tc.GetCluster().Running, 7)
	grown := tc.Ring().Version

	require.NoError(t, tc.Shutdown(ctx))
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	restarted := tc.Ring().Version
	assert.Greater(t, restarted, grown)

	// a controller restarted between shutdown and initialize keeps counting
	require.NoError(t, tc.Shutdown(ctx))
	stopped := tc.Ring().Version

	next := newTestControllerWithStore(t, state)
	require.NoError(t, next.Restore(ctx))
	assert.Equal(t, stopped, next.Ring().Version)
	require.NoError(t, next.Initialize(ctx, 3, 0, ""))
	assert.Greater(t, next.Ring().Version, stopped)
	assert.Greater(t, next.Ring().Version, restarted)
}

func TestReportDead_Ignored(t *testing.T) {
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(context.Background(), 3, 0, ""))

	action := tc.ReportDead(context.Background(), inventory[6], inventory[0])
	assert.Equal(t, ActionIgnored, action)
}

func TestReportDead_FalseAlarm(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	before := tc.Ring()
	tc.nodes.reset()

	assert.Equal(t, ActionAccepted, tc.ReportDead(ctx, inventory[1], inventory[0]))
	tc.Wait()

	assert.Equal(t, before, tc.Ring())
	assert.Len(t, tc.GetCluster().Running, 3)
	assert.Equal(t, 1, tc.nodes.count(inventory[1], "HealthCheck"))
	assert.Equal(t, 1, tc.nodes.count(inventory[0], "ApplyRing"), "reporter gets the ring again")
	assert.Equal(t, float64(1), testutil.ToFloat64(tc.metrics.DeadReportsTotal.WithLabelValues("false_alarm")))
}

func TestReportDead_ReplacesAtMinimumSize(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))

	dead := inventory[1]
	tc.nodes.setDown(dead)
	tc.nodes.reset()

	assert.Equal(t, ActionAccepted, tc.ReportDead(ctx, dead, inventory[0]))
	tc.Wait()

	running := tc.GetCluster().Running
	assert.Len(t, running, 3)
	assert.NotContains(t, running, dead)
	assert.Contains(t, running, inventory[3])
	assert.Zero(t, tc.nodes.count(dead, "Stop"), "a dead node is not retired")

	op := tc.LastOperation()
	assert.Equal(t, model.OperationReplace, op.Type)
	assert.Equal(t, dead, op.Node)
	assert.Equal(t, float64(1), testutil.ToFloat64(tc.metrics.DeadReportsTotal.WithLabelValues("replaced")))

	// a second detector reporting the same node finds it already gone
	assert.Equal(t, ActionIgnored, tc.ReportDead(ctx, dead, inventory[2]))
}

func TestReportCompromised_TwoWitnesses(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 4, 0, ""))
	suspect := inventory[1]

	assert.Equal(t, "first_report", tc.ReportCompromised(ctx, suspect, inventory[0]))
	assert.Equal(t, "duplicate", tc.ReportCompromised(ctx, suspect, inventory[0]))
	tc.Wait()
	assert.Contains(t, tc.GetCluster().Running, suspect)

	assert.Equal(t, ActionReplacing, tc.ReportCompromised(ctx, suspect, inventory[2]))
	tc.Wait()

	running := tc.GetCluster().Running
	assert.Len(t, running, 4)
	assert.NotContains(t, running, suspect)
	assert.Equal(t, 1, tc.nodes.count(suspect, "Shutdown"), "a live suspect is retired")
	assert.Empty(t, tc.corroborator.Pending())
}

func TestReportCompromised_NotRunning(t *testing.T) {
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(context.Background(), 3, 0, ""))

	assert.Equal(t, ActionIgnored, tc.ReportCompromised(context.Background(), inventory[5], inventory[0]))
	assert.Empty(t, tc.corroborator.Pending())
}

func TestBroadcastUnsubscribe(t *testing.T) {
	ctx := context.Background()
	tc := newTestController(t)
	require.NoError(t, tc.Initialize(ctx, 3, 0, ""))
	tc.nodes.setDown(inventory[2])

	require.NoError(t, tc.BroadcastUnsubscribe(ctx, "k1", "10.0.0.9:7000"))
	for _, node := range inventory[:3] {
		assert.Equal(t, 1, tc.nodes.count(node, "Unsubscribe:k1:10.0.0.9:7000"), node.String())
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	state := store.NewMemoryStateStore()

	first := newTestControllerWithStore(t, state)
	require.NoError(t, first.Initialize(ctx, 4, 20, "FIFO"))
	require.NoError(t, first.RemoveNode(ctx, 2))

	second := newTestControllerWithStore(t, state)
	require.NoError(t, second.Restore(ctx))

	assert.Equal(t, first.GetCluster(), second.GetCluster())
	assert.Equal(t, 20, second.cacheSize)
	assert.Equal(t, "FIFO", second.strategy)
	assert.Equal(t, model.OperationRemoveNode, second.LastOperation().Type)

	empty := newTestController(t)
	require.NoError(t, empty.Restore(ctx))
	assert.Empty(t, empty.GetCluster().Running)
}

func TestFairLock_FIFO(t *testing.T) {
	l := NewFairLock()
	l.Lock()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Unlock()
		}()
		// wait until goroutine i holds its ticket
		require.Eventually(t, func() bool {
			l.mu.Lock()
			defer l.mu.Unlock()
			return l.next == uint64(i+2)
		}, time.Second, time.Millisecond)
	}

	l.Unlock()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRoutes(t *testing.T) {
	tc := newTestController(t)
	router := mux.NewRouter()
	tc.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/operations/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, tc.Initialize(context.Background(), 3, 0, ""))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cluster", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cluster rpc.ClusterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cluster))
	assert.Equal(t, inventory[:3], cluster.Running)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ring", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap ring.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, tc.Ring(), snap)
}
