// Package cyclestore implements component C2: the persistent set of
// candidate cycles, their canonical identity, and the inverted index
// (swap -> cycles) that the rate engine walks on every block. The
// idempotent-insert / map-based-removal idiom here follows
// protocols/uniswapv2/differ.go and patcher.go's map-keyed diff/patch
// pattern, applied to cycles keyed by canonical id instead of pools keyed
// by address.
package cyclestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/arbicore/arbicore/engine"
)

// Persistence is the contract a concrete store (e.g. cyclestore/sqlite)
// must satisfy. It implements the relational schema documented in
// SPEC_FULL.md §6 (cycles, cycle_swaps) but is otherwise opaque to Store.
type Persistence interface {
	LoadAll(ctx context.Context) ([]Cycle, error)
	Insert(ctx context.Context, cycle Cycle) error
	DeleteContaining(ctx context.Context, poolAddress engine.Address) ([]CycleID, error)
}

// SwapResolver maps a persistent (pool address, direction) pair to the
// flat swap index a bound market.Market uses internally. Index.Bind takes
// one of these to translate cycles into the runtime's inverted index.
type SwapResolver func(pool engine.Address, dir engine.Direction) (swapIndex int, ok bool)

// Store is the runtime representation of C2 after load: a contiguous
// array of cycles (iteration order is insertion order) plus, once Bind is
// called, an inverted index from swap index to the cycle indices that
// reference it.
//
// Store itself never takes mu: its methods assume the caller already holds
// the appropriate lock. world.World's per-block Update holds RLock for its
// whole duration (CycleAt/CyclesForSwap results, and the pointers
// rateengine/quoteengine mutate through, must stay valid for that whole
// call); a maintenance pass (pruner's Insert/DeleteContaining followed by
// Bind) holds Lock for its whole duration, so a structural mutation
// (append, or byID/bySwap reassignment) can never land between two calls a
// single World.Update makes. Per SPEC_FULL.md §5: "C6 serializes its
// writes behind a store-level lock; cycle identity and count are stable
// between load_all() calls."
type Store struct {
	persistence Persistence
	mu          sync.RWMutex

	cycles []Cycle
	byID   map[CycleID]int
	bySwap map[int][]int // market swap index -> cycle indices, set by Bind
}

// Lock acquires exclusive access for a maintenance pass. Hold it across
// every Insert/DeleteContaining/Bind call in the pass so world.Update never
// observes a half-mutated store.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases a Lock acquired for a maintenance pass.
func (s *Store) Unlock() { s.mu.Unlock() }

// RLock acquires shared access for the duration of one world.Update call.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases an RLock acquired for a world.Update call.
func (s *Store) RUnlock() { s.mu.RUnlock() }

// NewStore constructs an empty, unbound store backed by the given
// persistence layer.
func NewStore(persistence Persistence) *Store {
	return &Store{
		persistence: persistence,
		byID:        make(map[CycleID]int),
	}
}

// LoadAll performs the blocking, startup-only load from persistence
// (SPEC_FULL.md §5's only sanctioned suspension point besides C6). It
// replaces any in-memory state. Called before the store is shared across
// goroutines, so it takes no lock itself; callers sharing a live store
// must wrap it in Lock/Unlock.
func (s *Store) LoadAll(ctx context.Context) error {
	cycles, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("cyclestore: load all: %w", err)
	}
	s.cycles = cycles
	s.byID = make(map[CycleID]int, len(cycles))
	for i, c := range cycles {
		s.byID[c.ID] = i
	}
	s.bySwap = nil
	return nil
}

// Insert canonicalizes and idempotently adds a candidate cycle (given as
// an unrotated swap sequence) to both the persistence layer and the
// in-memory array. If a cycle with the same canonical form already
// exists, Insert is a no-op and returns the existing cycle with
// inserted=false. Insert does not update the inverted index; callers must
// re-Bind (C6 runs out-of-band and is never on the per-block hot path, so
// this is acceptable per SPEC_FULL.md §5). Insert takes no lock itself —
// the caller (pruner's maintenance pass) must hold Lock across Insert and
// the Bind that follows it.
func (s *Store) Insert(ctx context.Context, swaps []CycleSwap) (cycle Cycle, inserted bool, err error) {
	candidate, err := Canonicalize(swaps)
	if err != nil {
		return Cycle{}, false, err
	}

	if idx, exists := s.byID[candidate.ID]; exists {
		return s.cycles[idx], false, nil
	}

	if err := s.persistence.Insert(ctx, candidate); err != nil {
		return Cycle{}, false, fmt.Errorf("cyclestore: insert %s: %w", candidate.ID, err)
	}

	s.byID[candidate.ID] = len(s.cycles)
	s.cycles = append(s.cycles, candidate)
	return candidate, true, nil
}

// DeleteContaining removes every cycle referencing poolAddress, from both
// persistence and the in-memory array, and returns the count removed.
// Per SPEC_FULL.md §4.6, this is a C6 (pruning) operation, never called
// from the per-block hot path. Takes no lock itself — the caller must hold
// Lock across DeleteContaining and the Bind that follows it.
func (s *Store) DeleteContaining(ctx context.Context, poolAddress engine.Address) (int, error) {
	removedIDs, err := s.persistence.DeleteContaining(ctx, poolAddress)
	if err != nil {
		return 0, fmt.Errorf("cyclestore: delete containing %s: %w", poolAddress, err)
	}

	removedSet := make(map[CycleID]struct{}, len(removedIDs))
	for _, id := range removedIDs {
		removedSet[id] = struct{}{}
	}

	kept := s.cycles[:0:0]
	for _, c := range s.cycles {
		if _, removed := removedSet[c.ID]; removed {
			continue
		}
		kept = append(kept, c)
	}
	s.cycles = kept

	s.byID = make(map[CycleID]int, len(s.cycles))
	for i, c := range s.cycles {
		s.byID[c.ID] = i
	}
	s.bySwap = nil

	return len(removedSet), nil
}

// Cycles returns the full cycle array. Index position is stable until the
// next LoadAll/DeleteContaining.
func (s *Store) Cycles() []Cycle { return s.cycles }

// NumCycles returns the number of cycles currently held.
func (s *Store) NumCycles() int { return len(s.cycles) }

// CycleAt returns a pointer into the store's live cycle array, so
// rateengine can mutate LnRate/Dirty in place without copying the (short)
// Swaps slice on every access.
func (s *Store) CycleAt(index int) *Cycle { return &s.cycles[index] }

// Bind builds the inverted index (swap index -> cycle indices) by
// resolving every cycle's address-based swaps against a live market. This
// is the "precomputed inverted index" of SPEC_FULL.md §4.3, built once at
// startup (or after any offline C6 mutation) and read-only thereafter.
func (s *Store) Bind(resolve SwapResolver) error {
	bySwap := make(map[int][]int)
	for cycleIdx, c := range s.cycles {
		for _, leg := range c.Swaps {
			swapIdx, ok := resolve(leg.PoolAddress, leg.Direction)
			if !ok {
				return fmt.Errorf("cyclestore: cycle %s references unknown swap (pool %s, %s): %w",
					c.ID, leg.PoolAddress, leg.Direction, engine.ErrInvariantViolation)
			}
			bySwap[swapIdx] = append(bySwap[swapIdx], cycleIdx)
		}
	}
	s.bySwap = bySwap
	return nil
}

// CyclesForSwap returns the (unordered) cycle indices whose swap set
// includes the given market swap index. Returns nil if Bind has not been
// called or the swap touches no cycle.
func (s *Store) CyclesForSwap(swapIndex int) []int {
	if s.bySwap == nil {
		return nil
	}
	return s.bySwap[swapIndex]
}
