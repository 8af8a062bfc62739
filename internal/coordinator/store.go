package coordinator

import (
	"sort"
	"sync"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Store holds the runner record set and the assignment map, the in-memory
// authority for the cluster. All mutation goes through AddRunner,
// RemoveRunner, and ApplyAssignments, each called only by the control loop.
//
// Thread Safety: all methods are safe for concurrent use. A single coarse
// RWMutex guards both the runner set and the assignment map; contention is
// trivial at the event rates the manager sees. Read accessors copy on the
// way out, so callers can never alias store internals.
//
// Concurrency model:
//   - The control loop is the only mutator; readers (HTTP handlers, tests)
//     may snapshot from any goroutine
//   - The assignment map's domain is exactly [1, totalShards] at all
//     times; mutation never adds or removes shard keys
//   - commitVers advances once per committed mutation and is what the
//     persister stamps onto durable snapshots
type Store struct {
	mu          sync.RWMutex
	runners     map[string]shardtypes.RunnerRecord // keyed by address.String()
	assignments shardtypes.AssignmentMap
	totalShards int
	commitVers  uint64
}

// NewStore creates a Store whose assignment map domain is exactly
// [1, totalShards], all initially unassigned.
//
// Parameters:
//   - totalShards: the fixed shard count N, immutable after bootstrap
//
// Returns:
//   - *Store: empty store at commit version 0
//
// Example:
//
//	store := NewStore(300)
//	// store.AllAssignments() has 300 entries, all unassigned
func NewStore(totalShards int) *Store {
	assignments := make(shardtypes.AssignmentMap, totalShards)
	for i := 1; i <= totalShards; i++ {
		assignments[shardtypes.ShardID(i)] = shardtypes.RunnerAddress{}
	}
	return &Store{
		runners:     make(map[string]shardtypes.RunnerRecord),
		assignments: assignments,
		totalShards: totalShards,
	}
}

// LoadSnapshot seeds the store from a persisted snapshot during recovery.
// It must be called before event intake opens, and only once.
//
// Parameters:
//   - runners: the persisted runner record set, taken as-is
//   - assignments: the persisted assignment map; nil keeps the freshly
//     initialized all-unassigned domain
//   - version: the commit version the snapshot was persisted at; commit
//     numbering resumes from here
func (s *Store) LoadSnapshot(runners []shardtypes.RunnerRecord, assignments shardtypes.AssignmentMap, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runners = make(map[string]shardtypes.RunnerRecord, len(runners))
	for _, r := range runners {
		s.runners[r.Address.String()] = r
	}
	if assignments != nil {
		s.assignments = assignments.Clone()
	}
	s.commitVers = version
}

// AllRunners returns a snapshot copy of the registered runner set, sorted
// by address so iteration order is reproducible.
func (s *Store) AllRunners() []shardtypes.RunnerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shardtypes.RunnerRecord, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}

// AllAssignments returns a copy of the current total assignment map. The
// domain is always exactly [1, totalShards].
func (s *Store) AllAssignments() shardtypes.AssignmentMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments.Clone()
}

// AssignmentsForRunner returns the shards currently owned by addr, in
// ascending order.
//
// Parameters:
//   - addr: the runner to look up; unknown addresses yield an empty set
//
// Returns:
//   - []ShardID: owned shards, ascending; nil when the runner owns nothing
//
// Implementation: a linear scan of the assignment map. The per-runner
// shard set is derived on demand rather than maintained as an index — the
// address stored in the map is the single source of truth, so there is no
// second structure to drift out of sync.
func (s *Store) AssignmentsForRunner(addr shardtypes.RunnerAddress) []shardtypes.ShardID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shardtypes.ShardID
	for shard, owner := range s.assignments {
		if owner == addr {
			out = append(out, shard)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CommitVersion returns the monotonic commit counter, incremented once per
// committed mutation.
func (s *Store) CommitVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitVers
}

// Snapshot returns a consistent point-in-time view for the assignment
// engine, which operates purely on this value.
//
// Returns:
//   - Snapshot: runners sorted by address, a deep copy of the assignment
//     map, and the configured shard count; mutating it never affects the
//     store
func (s *Store) Snapshot() shardtypes.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runners := make([]shardtypes.RunnerRecord, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	sort.Slice(runners, func(i, j int) bool { return runners[i].Address.Less(runners[j].Address) })

	return shardtypes.Snapshot{
		Runners:     runners,
		Assignments: s.assignments.Clone(),
		TotalShards: s.totalShards,
	}
}

// AddRunner registers a new runner record, or refreshes an existing one at
// the same address. Registration is idempotent on (address, version). The
// runner set is part of the persisted snapshot, so adding one is a commit.
func (s *Store) AddRunner(r shardtypes.RunnerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[r.Address.String()] = r
	s.commitVers++
}

// HasRunner reports whether addr is currently registered.
func (s *Store) HasRunner(addr shardtypes.RunnerAddress) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.runners[addr.String()]
	return ok
}

// TouchHeartbeat refreshes the last-heartbeat timestamp for addr and
// resets its strike counter.
//
// Parameters:
//   - addr: the heartbeating runner
//   - at: the heartbeat timestamp in unix nanos, from the injected clock
//
// Returns:
//   - bool: false if addr is not registered (caller surfaces ClientMisuse)
//
// Heartbeats mutate liveness bookkeeping only; they are not commits and do
// not advance the commit version.
func (s *Store) TouchHeartbeat(addr shardtypes.RunnerAddress, at int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	r, ok := s.runners[key]
	if !ok {
		return false
	}
	r.LastHeartbeat = at
	r.Strikes = 0
	s.runners[key] = r
	return true
}

// RecordStrike increments addr's consecutive-failure counter and returns
// the new count. Returns -1 if addr is not registered. Like heartbeats,
// strikes are liveness bookkeeping, not commits.
func (s *Store) RecordStrike(addr shardtypes.RunnerAddress) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	r, ok := s.runners[key]
	if !ok {
		return -1
	}
	r.Strikes++
	s.runners[key] = r
	return r.Strikes
}

// RemoveRunner removes a runner record and, in the same commit, unassigns
// every shard it owned. Readers never observe a state where the runner is
// gone but its shards still point to it.
//
// Parameters:
//   - addr: the runner to remove; removing an unknown address still
//     commits (the caller guards against that where it matters)
//
// Returns:
//   - []Delta: exactly one delta listing the removed runner's vacated
//     shards, or nil when it owned nothing
//
// Implementation:
//  1. Delete the runner record
//  2. Scan the assignment map, resetting every shard owned by addr to the
//     unassigned marker and collecting the shard ids
//  3. Advance the commit version (the runner set changed even if no shard
//     did) and return the sorted delta
func (s *Store) RemoveRunner(addr shardtypes.RunnerAddress) []shardtypes.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runners, addr.String())

	var removed []shardtypes.ShardID
	for shard, owner := range s.assignments {
		if owner == addr {
			s.assignments[shard] = shardtypes.RunnerAddress{}
			removed = append(removed, shard)
		}
	}
	s.commitVers++
	if len(removed) == 0 {
		return nil
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return []shardtypes.Delta{{Runner: addr, Removed: removed}}
}

// ApplyAssignments atomically applies a batch of moves, producing the
// per-runner deltas for the persister and notifier.
//
// Partial application is forbidden: either every move lands, or the store
// is left unchanged and an *Error of KindInvariant is returned. The whole
// batch is validated before the first write, which is what makes the
// all-or-nothing guarantee hold without an undo path.
//
// Parameters:
//   - moves: (shard, newOwner) pairs; the zero address vacates the shard
//
// Returns:
//   - []Delta: per-runner added/removed sets, shards ascending, deltas
//     sorted by runner address; nil when every move was a no-op
//   - error: KindInvariant for a shard outside [1, totalShards] or an
//     owner that is not a registered runner
//
// Example:
//
//	deltas, err := store.ApplyAssignments([]shardtypes.Move{
//	    {Shard: 7, NewOwner: shardtypes.RunnerAddress{}}, // vacate
//	    {Shard: 7, NewOwner: r2},                         // reassign
//	})
func (s *Store) ApplyAssignments(moves []shardtypes.Move) ([]shardtypes.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mv := range moves {
		if mv.Shard < 1 || int(mv.Shard) > s.totalShards {
			return nil, Invariant("ApplyAssignments", "shard %d outside [1,%d]", mv.Shard, s.totalShards)
		}
		if !mv.NewOwner.IsZero() {
			if _, ok := s.runners[mv.NewOwner.String()]; !ok {
				return nil, Invariant("ApplyAssignments", "assignment to unknown runner %s", mv.NewOwner)
			}
		}
	}

	byRunner := make(map[string]*shardtypes.Delta)
	get := func(addr shardtypes.RunnerAddress) *shardtypes.Delta {
		key := addr.String()
		d, ok := byRunner[key]
		if !ok {
			d = &shardtypes.Delta{Runner: addr}
			byRunner[key] = d
		}
		return d
	}

	for _, mv := range moves {
		prev := s.assignments[mv.Shard]
		if prev == mv.NewOwner {
			continue
		}
		if !prev.IsZero() {
			get(prev).Removed = append(get(prev).Removed, mv.Shard)
		}
		if !mv.NewOwner.IsZero() {
			get(mv.NewOwner).Added = append(get(mv.NewOwner).Added, mv.Shard)
		}
		s.assignments[mv.Shard] = mv.NewOwner
	}

	if len(byRunner) == 0 {
		return nil, nil
	}
	s.commitVers++

	deltas := make([]shardtypes.Delta, 0, len(byRunner))
	for _, d := range byRunner {
		sort.Slice(d.Added, func(i, j int) bool { return d.Added[i] < d.Added[j] })
		sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i] < d.Removed[j] })
		deltas = append(deltas, *d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Runner.Less(deltas[j].Runner) })
	return deltas, nil
}
