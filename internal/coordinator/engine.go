package coordinator

import (
	"sort"

	"github.com/dreamware/shardmgr/internal/shardtypes"
)

// Engine computes assignment and rebalance moves from a Snapshot. It is a
// pure, synchronous, deterministic function set with no transport, clock,
// or storage dependency, unit-testable on bare Snapshot values.
//
// Determinism: both phases break every tie explicitly (load, then address
// lexicographic order; overload, then highest shard id), so two engines
// given the same snapshot produce identical output. The control loop
// relies on this to make manager behavior reproducible from a command
// sequence.
//
// Thread Safety: an Engine holds no mutable state beyond its configured
// move budget; its methods only read the snapshot they are handed, so a
// single Engine value is safe to share across goroutines.
type Engine struct {
	// MaxMovesPerRound bounds how many shards Rebalance vacates in a
	// single round. Zero means unbounded.
	MaxMovesPerRound int
}

// NewEngine creates an Engine with the given per-round move budget.
func NewEngine(maxMovesPerRound int) *Engine {
	return &Engine{MaxMovesPerRound: maxMovesPerRound}
}

// AssignUnassigned places currently unassigned shards onto runners.
//
// Only runners at the maximum observed version are candidates, so that
// during a rolling upgrade new shards never land on stale binaries.
//
// Parameters:
//   - snap: point-in-time view of runners and assignments
//
// Returns:
//   - []Move: one move per placed shard; empty when there is nothing to
//     place or no candidate exists (shards then stay unassigned)
//
// Implementation:
//  1. Collect the unassigned shards and sort them by ascending shard id
//  2. Gate candidates to the maximum observed runner version
//  3. Seed each candidate's simulated load with its current owned count
//  4. Walk the shards in order, assigning each to the least-loaded
//     candidate (ties to the lexicographically smaller address) and
//     incrementing that candidate's simulated load
func (e *Engine) AssignUnassigned(snap shardtypes.Snapshot) []shardtypes.Move {
	var unassigned []shardtypes.ShardID
	for shard, owner := range snap.Assignments {
		if owner.IsZero() {
			unassigned = append(unassigned, shard)
		}
	}
	if len(unassigned) == 0 {
		return nil
	}
	sort.Slice(unassigned, func(i, j int) bool { return unassigned[i] < unassigned[j] })

	candidates := maxVersionCandidates(snap.Runners)
	if len(candidates) == 0 {
		return nil
	}

	load := make(map[string]int, len(candidates))
	for _, c := range candidates {
		load[c.Address.String()] = 0
	}
	for _, owner := range snap.Assignments {
		if owner.IsZero() {
			continue
		}
		if _, ok := load[owner.String()]; ok {
			load[owner.String()]++
		}
	}

	moves := make([]shardtypes.Move, 0, len(unassigned))
	for _, shard := range unassigned {
		least := leastLoaded(candidates, load)
		moves = append(moves, shardtypes.Move{Shard: shard, NewOwner: least})
		load[least.String()]++
	}
	return moves
}

// Rebalance vacates shards from overloaded runners so a following
// AssignUnassigned pass can place them on lighter ones. It never assigns
// directly. The two-step discipline keeps an assignment from ever being
// overwritten in place: a runner sees an unassign, drains, and only then
// does another runner see the assign.
//
// Targets are computed per version class with the remainder-aware split:
// for a class owning total shards across n runners, exactly total mod n
// runners get the ceiling target and the rest get the floor target, so the
// vacated shards exactly cover the class's deficit and the class settles
// within one shard of even. The ceiling slots go to the currently
// heaviest runners (ties to the smaller address), which minimizes moves. A
// plain ceiling threshold is not enough here: it under-vacates whenever n
// does not divide total, leaving a late joiner permanently below its fair
// share.
//
// Parameters:
//   - snap: point-in-time view of runners and assignments
//
// Returns:
//   - []Move: vacate moves (NewOwner is the zero address), ordered by
//     largest overload first and highest shard id first within a runner,
//     truncated at MaxMovesPerRound
//
// Implementation:
//  1. Group runners by version and index each runner's owned shards,
//     sorted by descending shard id
//  2. Per class, hand out ceiling targets to the total mod n heaviest
//     runners and floor targets to the rest
//  3. Flag every runner owning more than its target, with the overage as
//     its excess
//  4. Vacate excess shards, largest overload first, highest id first,
//     until done or the move budget is exhausted
func (e *Engine) Rebalance(snap shardtypes.Snapshot) []shardtypes.Move {
	byVersion := make(map[int64][]shardtypes.RunnerRecord)
	for _, r := range snap.Runners {
		byVersion[r.Version] = append(byVersion[r.Version], r)
	}

	ownedBy := make(map[string][]shardtypes.ShardID)
	for shard, owner := range snap.Assignments {
		if !owner.IsZero() {
			ownedBy[owner.String()] = append(ownedBy[owner.String()], shard)
		}
	}
	for _, shards := range ownedBy {
		sort.Slice(shards, func(i, j int) bool { return shards[i] > shards[j] })
	}

	type overload struct {
		runner shardtypes.RunnerRecord
		excess int
	}
	var overloaded []overload

	for _, runners := range byVersion {
		n := len(runners)
		if n == 0 {
			continue
		}
		total := 0
		for _, r := range runners {
			total += len(ownedBy[r.Address.String()])
		}
		base := total / n
		ceilSlots := total % n

		// Heaviest runners take the ceiling targets, so already-full
		// runners shed as little as possible.
		class := append([]shardtypes.RunnerRecord(nil), runners...)
		sort.Slice(class, func(i, j int) bool {
			li := len(ownedBy[class[i].Address.String()])
			lj := len(ownedBy[class[j].Address.String()])
			if li != lj {
				return li > lj
			}
			return class[i].Address.Less(class[j].Address)
		})

		for i, r := range class {
			target := base
			if i < ceilSlots {
				target = base + 1
			}
			owned := len(ownedBy[r.Address.String()])
			if owned > target {
				overloaded = append(overloaded, overload{runner: r, excess: owned - target})
			}
		}
	}

	sort.Slice(overloaded, func(i, j int) bool {
		if overloaded[i].excess != overloaded[j].excess {
			return overloaded[i].excess > overloaded[j].excess
		}
		return overloaded[i].runner.Address.Less(overloaded[j].runner.Address)
	})

	var moves []shardtypes.Move
	for _, ov := range overloaded {
		shards := ownedBy[ov.runner.Address.String()]
		take := ov.excess
		if take > len(shards) {
			take = len(shards)
		}
		for i := 0; i < take; i++ {
			if e.MaxMovesPerRound > 0 && len(moves) >= e.MaxMovesPerRound {
				return moves
			}
			moves = append(moves, shardtypes.Move{Shard: shards[i], NewOwner: shardtypes.RunnerAddress{}})
		}
	}
	return moves
}

// maxVersionCandidates returns the runners at the maximum observed
// version, the only ones eligible to receive new assignments.
func maxVersionCandidates(runners []shardtypes.RunnerRecord) []shardtypes.RunnerRecord {
	if len(runners) == 0 {
		return nil
	}
	var maxVer int64
	for _, r := range runners {
		if r.Version > maxVer {
			maxVer = r.Version
		}
	}
	var out []shardtypes.RunnerRecord
	for _, r := range runners {
		if r.Version == maxVer {
			out = append(out, r)
		}
	}
	return out
}

// leastLoaded picks the candidate with the lowest simulated load, breaking
// ties toward the lexicographically smaller address.
func leastLoaded(candidates []shardtypes.RunnerRecord, load map[string]int) shardtypes.RunnerAddress {
	best := candidates[0].Address
	bestLoad := load[best.String()]
	for _, c := range candidates[1:] {
		l := load[c.Address.String()]
		if l < bestLoad || (l == bestLoad && c.Address.Less(best)) {
			best = c.Address
			bestLoad = l
		}
	}
	return best
}
