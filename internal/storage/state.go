package storage

import (
	"encoding/json"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// stateKey is the single key under which the manager's entire persisted
// snapshot lives — one versioned blob rather than per-shard rows, so
// SaveState can be a single atomic Put against the underlying Store.
const stateKey = "shardmanager/state"

// State is the persisted snapshot shape: the runner record set, the total
// assignment map, and the manager's monotonic commit counter.
type State struct {
	Runners     []shardtypes.RunnerRecord `json:"runners"`
	Assignments shardtypes.AssignmentMap  `json:"assignments"`
	Version     uint64                    `json:"version"`
}

// Contract is the manager's durability contract. SaveState must be atomic
// with respect to LoadState: a concurrent LoadState never observes a
// partially written State.
type Contract interface {
	// LoadState returns the most recently saved State, or ok=false if
	// nothing has been saved yet, in which case the manager starts
	// empty.
	LoadState() (state State, ok bool, err error)

	// SaveState persists state as a single atomic write.
	SaveState(state State) error

	// Close releases any resources held by the backend.
	Close() error
}

// KVContract adapts any byte-oriented Store into the Contract interface by
// JSON-encoding the State under a single well-known key. Both MemoryStore
// and the badger-backed Store satisfy Store, so either can back a
// KVContract.
type KVContract struct {
	store Store
}

// NewKVContract wraps store as a Contract.
func NewKVContract(store Store) *KVContract {
	return &KVContract{store: store}
}

// LoadState implements Contract.
func (c *KVContract) LoadState() (State, bool, error) {
	raw, err := c.store.Get(stateKey)
	if err == ErrKeyNotFound {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

// SaveState implements Contract. The underlying Store.Put is expected to be
// a single atomic write for its backend (true for both MemoryStore, under
// its mutex, and the badger-backed Store, inside a single transaction).
func (c *KVContract) SaveState(st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.store.Put(stateKey, raw)
}

// Close implements Contract.
func (c *KVContract) Close() error {
	type closer interface{ Close() error }
	if cl, ok := c.store.(closer); ok {
		return cl.Close()
	}
	return nil
}

// NoopContract is the backend for ephemeral clusters: LoadState always
// yields nothing, SaveState discards its input.
type NoopContract struct{}

// LoadState always reports no prior state.
func (NoopContract) LoadState() (State, bool, error) { return State{}, false, nil }

// SaveState discards st.
func (NoopContract) SaveState(State) error { return nil }

// Close is a no-op.
func (NoopContract) Close() error { return nil }
