package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	self      = ring.NodeID{Address: "127.0.0.1", Port: 50000}
	successor = ring.NodeID{Address: "127.0.0.1", Port: 50001}
	other     = ring.NodeID{Address: "127.0.0.1", Port: 50002}
)

type fakeProber struct {
	mu      sync.Mutex
	fail    map[ring.NodeID]bool
	calls   int
	lastReq *rpc.HeartbeatRequest
}

func (f *fakeProber) Heartbeat(ctx context.Context, to ring.NodeID, req *rpc.HeartbeatRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.fail[to] {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeProber) setFail(id ring.NodeID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[ring.NodeID]bool)
	}
	f.fail[id] = fail
}

func (f *fakeProber) last() *rpc.HeartbeatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeReporter struct {
	count   atomic.Int32
	mu      sync.Mutex
	suspect []ring.NodeID
}

func (f *fakeReporter) ReportDead(ctx context.Context, suspect ring.NodeID) error {
	f.mu.Lock()
	f.suspect = append(f.suspect, suspect)
	f.mu.Unlock()
	f.count.Add(1)
	return nil
}

func newTestManager(prober *fakeProber, reporter *fakeReporter, threshold int) *Manager {
	return NewManager(self, Deps{
		Prober:   prober,
		Reporter: reporter,
		Subscriptions: func() map[string][]string {
			return map[string][]string{"k": {"127.0.0.1:7000"}}
		},
		Config: Config{
			Interval:         5 * time.Millisecond,
			Timeout:          50 * time.Millisecond,
			FailureThreshold: threshold,
		},
		Logger: zap.NewNop(),
	})
}

func TestMonitor_HealthySuccessor(t *testing.T) {
	prober := &fakeProber{}
	reporter := &fakeReporter{}
	mgr := newTestManager(prober, reporter, 1)

	mgr.Retarget(successor, true)
	defer mgr.Stop()

	require.Eventually(t, func() bool { return prober.last() != nil }, time.Second, time.Millisecond)

	req := prober.last()
	assert.Equal(t, self, req.From)
	assert.Equal(t, []string{"127.0.0.1:7000"}, req.Subscriptions["k"])
	assert.Equal(t, int32(0), reporter.count.Load())
}

func TestMonitor_ReportsOnceAndExits(t *testing.T) {
	prober := &fakeProber{}
	prober.setFail(successor, true)
	reporter := &fakeReporter{}
	mgr := newTestManager(prober, reporter, 1)

	mgr.Retarget(successor, true)
	defer mgr.Stop()

	mon := mgr.Current()
	require.NotNil(t, mon)
	select {
	case <-mon.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit")
	}
	assert.Equal(t, StateDead, mon.State())

	require.Eventually(t, func() bool { return reporter.count.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), reporter.count.Load())
	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Equal(t, []ring.NodeID{successor}, reporter.suspect)
}

func TestMonitor_FailureThreshold(t *testing.T) {
	prober := &fakeProber{}
	prober.setFail(successor, true)
	reporter := &fakeReporter{}
	mgr := newTestManager(prober, reporter, 3)

	mgr.Retarget(successor, true)
	defer mgr.Stop()

	require.Eventually(t, func() bool { return reporter.count.Load() == 1 }, time.Second, time.Millisecond)
	prober.mu.Lock()
	calls := prober.calls
	prober.mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestManager_Retarget(t *testing.T) {
	prober := &fakeProber{}
	reporter := &fakeReporter{}
	mgr := newTestManager(prober, reporter, 1)
	defer mgr.Stop()

	mgr.Retarget(successor, true)
	first := mgr.Current()
	require.NotNil(t, first)

	// same healthy successor keeps the monitor
	mgr.Retarget(successor, true)
	assert.Same(t, first, mgr.Current())

	// new successor replaces it
	mgr.Retarget(other, true)
	second := mgr.Current()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, other, second.Target())
	assert.Equal(t, StateStopped, first.State())

	// no successor stops monitoring
	mgr.Retarget(ring.NodeID{}, false)
	assert.Nil(t, mgr.Current())
	assert.Equal(t, StateStopped, second.State())
}

func TestManager_RestartsDeadMonitor(t *testing.T) {
	prober := &fakeProber{}
	prober.setFail(successor, true)
	reporter := &fakeReporter{}
	mgr := newTestManager(prober, reporter, 1)
	defer mgr.Stop()

	mgr.Retarget(successor, true)
	dead := mgr.Current()
	<-dead.Done()

	prober.setFail(successor, false)
	mgr.Retarget(successor, true)
	assert.NotSame(t, dead, mgr.Current())
	assert.Equal(t, StateDead, dead.State())
}

func TestManager_IgnoresSelf(t *testing.T) {
	mgr := newTestManager(&fakeProber{}, &fakeReporter{}, 1)
	mgr.Retarget(self, true)
	assert.Nil(t, mgr.Current())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "awaiting_reply", StateAwaitingReply.String())
	assert.Equal(t, "dead", StateDead.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
