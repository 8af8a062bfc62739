package storage

import (
	"testing"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// TestMemoryStoreBasicOperations tests Get/Put/Delete round trips
func TestMemoryStoreBasicOperations(t *testing.T) {
	t.Run("get missing key", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Get("missing")
		if err != ErrKeyNotFound {
			t.Errorf("Expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.Put("k", []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := store.Get("k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "v" {
			t.Errorf("Expected 'v', got %q", got)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Put("k", []byte("old"))
		_ = store.Put("k", []byte("new"))
		got, _ := store.Get("k")
		if string(got) != "new" {
			t.Errorf("Expected 'new', got %q", got)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		_ = store.Put("k", []byte("v"))
		if err := store.Delete("k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete("k"); err != nil {
			t.Errorf("Second delete should not error, got %v", err)
		}
		if _, err := store.Get("k"); err != ErrKeyNotFound {
			t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("stored value is copied", func(t *testing.T) {
		store := NewMemoryStore()
		buf := []byte("original")
		_ = store.Put("k", buf)
		buf[0] = 'X'

		got, _ := store.Get("k")
		if string(got) != "original" {
			t.Errorf("Caller mutation leaked into the store: %q", got)
		}

		got[0] = 'Y'
		again, _ := store.Get("k")
		if string(again) != "original" {
			t.Errorf("Returned slice aliases store internals: %q", again)
		}
	})
}

// TestMemoryStoreKeys tests the enumeration surface
func TestMemoryStoreKeys(t *testing.T) {
	store := NewMemoryStore()
	if len(store.Keys()) != 0 {
		t.Error("Expected no keys in a fresh store")
	}
	_ = store.Put("a", []byte("12"))
	_ = store.Put("b", []byte("3456"))
	if keys := store.Keys(); len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %d", len(keys))
	}
}

// TestKVContract tests the load/save round trip over a byte store
func TestKVContract(t *testing.T) {
	t.Run("empty store yields no state", func(t *testing.T) {
		c := NewKVContract(NewMemoryStore())
		_, ok, err := c.LoadState()
		if err != nil {
			t.Fatalf("LoadState failed: %v", err)
		}
		if ok {
			t.Error("Expected no state from an empty store")
		}
	})

	t.Run("save then load round trips", func(t *testing.T) {
		c := NewKVContract(NewMemoryStore())
		r1 := shardtypes.RunnerAddress{Host: "r", Port: 9001}
		in := State{
			Runners:     []shardtypes.RunnerRecord{{Address: r1, Version: 3, LastHeartbeat: 77}},
			Assignments: shardtypes.AssignmentMap{1: r1, 2: {}},
			Version:     9,
		}
		if err := c.SaveState(in); err != nil {
			t.Fatalf("SaveState failed: %v", err)
		}

		out, ok, err := c.LoadState()
		if err != nil {
			t.Fatalf("LoadState failed: %v", err)
		}
		if !ok {
			t.Fatal("Expected saved state")
		}
		if out.Version != 9 {
			t.Errorf("Expected version 9, got %d", out.Version)
		}
		if len(out.Runners) != 1 || out.Runners[0].Address != r1 || out.Runners[0].Version != 3 {
			t.Errorf("Runner set mangled: %+v", out.Runners)
		}
		if out.Assignments[1] != r1 || !out.Assignments[2].IsZero() {
			t.Errorf("Assignment map mangled: %+v", out.Assignments)
		}
	})

	t.Run("later save wins", func(t *testing.T) {
		c := NewKVContract(NewMemoryStore())
		_ = c.SaveState(State{Version: 1})
		_ = c.SaveState(State{Version: 2})
		out, ok, _ := c.LoadState()
		if !ok || out.Version != 2 {
			t.Errorf("Expected version 2, got ok=%v version=%d", ok, out.Version)
		}
	})
}

// TestNoopContract tests the ephemeral backend
func TestNoopContract(t *testing.T) {
	var c NoopContract
	if err := c.SaveState(State{Version: 5}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	_, ok, err := c.LoadState()
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if ok {
		t.Error("Noop backend should never yield state")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// TestBadgerStore tests the durable backend end to end, including reopen.
func TestBadgerStore(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("OpenBadgerStore failed: %v", err)
	}

	c := NewKVContract(store)
	r1 := shardtypes.RunnerAddress{Host: "r", Port: 9001}
	in := State{
		Runners:     []shardtypes.RunnerRecord{{Address: r1, Version: 1}},
		Assignments: shardtypes.AssignmentMap{1: r1},
		Version:     4,
	}
	if err := c.SaveState(in); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen the same directory: the state survives the process boundary
	reopened, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	c2 := NewKVContract(reopened)
	defer c2.Close()

	out, ok, err := c2.LoadState()
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected persisted state after reopen")
	}
	if out.Version != 4 || out.Assignments[1] != r1 {
		t.Errorf("Reopened state mangled: %+v", out)
	}
}
