// Package storage provides the shard manager's durability layer: a
// byte-oriented key-value Store abstraction, the State snapshot shape, and
// the Contract through which the coordinator loads and saves its state.
//
// # Overview
//
// The manager's in-memory state is authoritative; storage is a durable
// mirror that seeds a fresh manager instance after a restart. The package
// keeps the two concerns separate: Store is a plain key-value surface with
// interchangeable backends, and Contract is the single load/save pair the
// coordinator actually consumes.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│           Coordinator               │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│      Contract (LoadState /          │
//	│       SaveState, atomic)            │
//	│   KVContract          NoopContract  │
//	└─────────────────────────────────────┘
//	                 │
//	        ┌────────┴────────┐
//	        ▼                 ▼
//	┌──────────────┐  ┌──────────────┐
//	│ MemoryStore  │  │ BadgerStore  │
//	│ (ephemeral)  │  │ (durable)    │
//	└──────────────┘  └──────────────┘
//
// # Backends
//
// MemoryStore keeps everything in a mutex-guarded map and copies values on
// both reads and writes, so callers can never alias its internals. It backs
// tests and ephemeral clusters.
//
// BadgerStore wraps an embedded badger database; each Put runs in its own
// transaction, which is what makes KVContract.SaveState atomic with
// respect to LoadState.
//
// NoopContract discards writes and never yields state, for clusters that
// accept losing assignments across a manager restart.
//
// # Snapshot Layout
//
// The entire persisted state is one JSON blob under a single well-known
// key: the runner record set, the full assignment map, and the manager's
// monotonic commit version. One key means one atomic write per commit and
// no partial-state recovery cases.
package storage
