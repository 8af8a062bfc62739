// Package coordinator implements the shard manager's control plane: the
// authoritative in-memory state store, the pure assignment engine, the
// single-consumer control loop, the health prober, and the persister and
// notifier that mirror every committed change to storage and to the
// affected runners.
//
// # Overview
//
// The coordinator partitions a fixed shard space [1, N] across a dynamic
// fleet of stateless runner processes. Runners register, heartbeat, and
// consume a per-runner stream of assignment deltas; the coordinator keeps
// the assignment balanced under churn, evicts silent runners, and persists
// its state so a restarted manager resumes where the previous one stopped.
//
// # Architecture
//
// Five cooperating parts, dependencies leaves-first:
//
//	┌──────────────────────────────────────────────┐
//	│                 MANAGER                      │
//	├──────────────────────────────────────────────┤
//	│                                              │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  Store                                 │  │
//	│  │  - runner records, assignment map      │  │
//	│  │  - single coarse lock, commit counter  │  │
//	│  │  - per-commit delta production         │  │
//	│  └────────────────────────────────────────┘  │
//	│                                              │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  Engine (pure)                         │  │
//	│  │  - version-gated assignment            │  │
//	│  │  - two-step vacate rebalance           │  │
//	│  └────────────────────────────────────────┘  │
//	│                                              │
//	│  ┌────────────────────────────────────────┐  │
//	│  │  Control loop                          │  │
//	│  │  - serialized event intake             │  │
//	│  │  - debounced rebalance rounds          │  │
//	│  └────────────────────────────────────────┘  │
//	│                                              │
//	│  ┌──────────────────┐  ┌─────────────────┐   │
//	│  │  Prober          │  │  Persister +    │   │
//	│  │  - ping fan-out  │  │  Notifier       │   │
//	│  │  - strike counts │  │  - commit order │   │
//	│  └──────────────────┘  └─────────────────┘   │
//	│                                              │
//	└──────────────────────────────────────────────┘
//
// # Concurrency Model
//
// The control loop is a single consumer draining a bounded event channel;
// it holds exclusive mutation authority over the Store. Event producers
// (HTTP handlers, the prober, the persister's result callback) are
// concurrent and only enqueue. The loop serializes commits, so per-runner
// notifications and persisted snapshots are both delivered in commit
// order. The persister's intake is unbuffered: a write in flight blocks
// the next commit's fan-out, which keeps the persisted sequence a prefix
// of the in-memory commit sequence.
//
// # Rebalancing
//
// Every state-changing event schedules a rebalance round; schedules within
// the debounce window coalesce into one. A round runs the engine twice:
// first Rebalance vacates shards from overloaded runners, then
// AssignUnassigned places the vacated and previously unowned shards onto
// the least-loaded runners at the maximum observed software version. Both
// phases break ties deterministically, so two managers fed the same
// snapshot compute identical moves.
//
// # Error Handling
//
// Components return the tagged Error type; call sites dispatch on its
// Kind. Transient transport failures are logged and retried per policy,
// persistence failures back off while rebalancing pauses, client misuse is
// rejected with state unchanged, and invariant violations stop the loop so
// a supervisor can restart the manager from its persisted snapshot.
package coordinator
