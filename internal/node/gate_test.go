package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteGate_LockWaitsForInflight(t *testing.T) {
	g := NewWriteGate()
	require.True(t, g.TryEnter())

	locked := make(chan struct{})
	go func() {
		g.Lock()
		close(locked)
	}()

	require.Eventually(t, g.Locked, time.Second, time.Millisecond)
	assert.False(t, g.TryEnter(), "new writes are refused while draining")

	select {
	case <-locked:
		t.Fatal("lock returned before the in-flight write finished")
	case <-time.After(20 * time.Millisecond):
	}

	g.Exit()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("lock did not return after drain")
	}

	g.Unlock()
	assert.False(t, g.Locked())
	assert.True(t, g.TryEnter())
	g.Exit()
}

func TestWriteGate_LockWhenIdle(t *testing.T) {
	g := NewWriteGate()
	g.Lock()
	assert.True(t, g.Locked())
	g.Unlock()
	g.Unlock()
	assert.False(t, g.Locked())
}

func TestSubscriptions(t *testing.T) {
	s := NewSubscriptions()

	assert.True(t, s.Add("k", "b"))
	assert.True(t, s.Add("k", "a"))
	assert.False(t, s.Add("k", "a"))
	assert.Equal(t, []string{"a", "b"}, s.Subscribers("k"))
	assert.Nil(t, s.Subscribers("other"))

	added := s.Merge(map[string][]string{"k": {"a", "c"}, "j": {"a"}})
	assert.Equal(t, 2, added)
	assert.Equal(t, 4, s.Len())

	snap := s.Snapshot()
	assert.Equal(t, map[string][]string{"k": {"a", "b", "c"}, "j": {"a"}}, snap)

	assert.True(t, s.Remove("j", "a"))
	assert.False(t, s.Remove("j", "a"))
	_, ok := s.Snapshot()["j"]
	assert.False(t, ok, "empty keys are dropped")
}
