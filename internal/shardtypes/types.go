// Package shardtypes holds the wire-level data model shared by the
// coordinator, the storage contract, and the HTTP transport: shard
// identifiers, runner addresses, runner records, and assignment deltas.
package shardtypes

import "fmt"

// ShardID is a shard slot in [1, N]. Shards are opaque; the mapping from an
// entity key to a ShardID is an external concern.
type ShardID int

// Unassigned is the Host of the zero RunnerAddress. An unassigned shard in
// an AssignmentMap maps to the zero RunnerAddress (empty Host and Port 0),
// which is what IsZero tests for; an empty Host alone does not mark a shard
// unassigned.
const Unassigned = ""

// RunnerAddress identifies a runner process over the RPC transport.
// Addresses are compared by value, never by pointer identity.
type RunnerAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String renders the address as host:port, used as the canonical map key
// and for the lexicographic tie-break in the assignment engine.
func (a RunnerAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Less implements the lexicographic ordering over addresses used to break
// load ties during assignment.
func (a RunnerAddress) Less(b RunnerAddress) bool {
	return a.String() < b.String()
}

// IsZero reports whether a is the unset address value.
func (a RunnerAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// RunnerRecord is the manager's authoritative view of one registered
// runner: its address, deployed version, and liveness bookkeeping.
type RunnerRecord struct {
	Address       RunnerAddress `json:"address"`
	Version       int64         `json:"version"`
	RegisteredAt  int64         `json:"registered_at"` // unix nanos, from the injected clock
	LastHeartbeat int64         `json:"last_heartbeat"`
	Strikes       int           `json:"strikes"` // consecutive failed health pings
}

// AssignmentMap is a total mapping shard -> owning runner address. Every
// shard in [1, N] is present; an unassigned shard maps to the zero
// RunnerAddress.
type AssignmentMap map[ShardID]RunnerAddress

// Clone returns a deep copy, used whenever a snapshot crosses the state
// store's lock boundary.
func (m AssignmentMap) Clone() AssignmentMap {
	out := make(AssignmentMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Delta is the per-runner difference between two consecutive assignment
// snapshots: shards newly owned and shards newly removed. It is the unit
// handed to both the persister and the notifier after a commit.
type Delta struct {
	Runner  RunnerAddress `json:"runner"`
	Added   []ShardID     `json:"added,omitempty"`
	Removed []ShardID     `json:"removed,omitempty"`
}

// IsEmpty reports whether the delta carries no change for its runner.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Move is the assignment engine's output unit: a shard's next owner, with
// the zero RunnerAddress meaning "vacate to unassigned".
type Move struct {
	Shard    ShardID
	NewOwner RunnerAddress
}

// Snapshot is the immutable input the assignment engine operates on — a
// point-in-time view of runners and assignments, copied out from the state
// store under its lock.
type Snapshot struct {
	Runners     []RunnerRecord
	Assignments AssignmentMap
	TotalShards int
}
