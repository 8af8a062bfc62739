package coordinator

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

func testLogger() logrus.FieldLogger {
	lg := logrus.New()
	lg.SetLevel(logrus.PanicLevel)
	return lg
}

// TestNotifierRegister tests channel creation and the initial full-assignment message
func TestNotifierRegister(t *testing.T) {
	t.Run("empty assignment sends no initial message", func(t *testing.T) {
		n := NewNotifier(4, testLogger())
		ch := n.Register(addr("r", 9001), nil)
		select {
		case d := <-ch:
			t.Errorf("Unexpected initial delta: %+v", d)
		default:
		}
	})

	t.Run("non-empty assignment sent as initial message", func(t *testing.T) {
		n := NewNotifier(4, testLogger())
		r1 := addr("r", 9001)
		ch := n.Register(r1, []shardtypes.ShardID{2, 5, 7})
		d := <-ch
		if len(d.Added) != 3 || d.Added[0] != 2 || d.Added[2] != 7 {
			t.Errorf("Expected initial delta [2 5 7], got %+v", d)
		}
	})

	t.Run("re-register closes the previous channel", func(t *testing.T) {
		n := NewNotifier(4, testLogger())
		r1 := addr("r", 9001)
		old := n.Register(r1, nil)
		_ = n.Register(r1, nil)
		if _, open := <-old; open {
			t.Error("Previous channel should be closed after re-register")
		}
	})
}

// TestNotifierNotify tests delta fan-out and ordering
func TestNotifierNotify(t *testing.T) {
	n := NewNotifier(8, testLogger())
	r1, r2 := addr("r", 9001), addr("r", 9002)
	ch1 := n.Register(r1, nil)
	ch2 := n.Register(r2, nil)

	n.Notify([]shardtypes.Delta{
		{Runner: r1, Added: []shardtypes.ShardID{1}},
		{Runner: r2, Added: []shardtypes.ShardID{2}},
		{Runner: r1, Removed: []shardtypes.ShardID{1}},
		{Runner: addr("ghost", 1), Added: []shardtypes.ShardID{3}}, // dropped
		{Runner: r1}, // empty, skipped
	})

	// Per-runner order preserved
	first := <-ch1
	if len(first.Added) != 1 || first.Added[0] != 1 {
		t.Errorf("Expected first r1 delta to add shard 1, got %+v", first)
	}
	second := <-ch1
	if len(second.Removed) != 1 || second.Removed[0] != 1 {
		t.Errorf("Expected second r1 delta to remove shard 1, got %+v", second)
	}
	if d := <-ch2; len(d.Added) != 1 || d.Added[0] != 2 {
		t.Errorf("Expected r2 delta to add shard 2, got %+v", d)
	}
	select {
	case d := <-ch1:
		t.Errorf("Unexpected extra delta on r1: %+v", d)
	default:
	}
}

// TestNotifierUnregister tests disconnection semantics
func TestNotifierUnregister(t *testing.T) {
	n := NewNotifier(4, testLogger())
	r1 := addr("r", 9001)
	ch := n.Register(r1, nil)

	n.Unregister(r1)
	if _, open := <-ch; open {
		t.Error("Channel should be closed after Unregister")
	}
	if _, ok := n.Channel(r1); ok {
		t.Error("Channel lookup should fail after Unregister")
	}

	// Deltas for a disconnected runner are dropped, not a panic
	n.Notify([]shardtypes.Delta{{Runner: r1, Added: []shardtypes.ShardID{1}}})

	// Unregistering twice is harmless
	n.Unregister(r1)
}

// TestNotifierClose tests shutdown
func TestNotifierClose(t *testing.T) {
	n := NewNotifier(4, testLogger())
	ch1 := n.Register(addr("r", 9001), nil)
	ch2 := n.Register(addr("r", 9002), nil)

	n.Close()
	if _, open := <-ch1; open {
		t.Error("ch1 should be closed")
	}
	if _, open := <-ch2; open {
		t.Error("ch2 should be closed")
	}
}
