package cyclestore

import (
	"bytes"
	"fmt"

	"github.com/arbicore/arbicore/engine"
	"github.com/ethereum/go-ethereum/crypto"
)

// CycleID is the canonical identity of a cycle: keccak256 of its
// rotation-normalized swap tuple.
type CycleID [32]byte

func (id CycleID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// CycleSwap is the persistent, address-based representation of one leg of
// a cycle: a pool address plus the direction traded through it. This is
// deliberately independent of any particular market.Market's internal
// indexing, so cycles persist and reload stably across process restarts.
type CycleSwap struct {
	PoolAddress engine.Address
	Direction   engine.Direction
}

// Cycle is an ordered, canonicalized sequence of 2-4 swaps that returns to
// its starting token. LnRate and Dirty are the only fields rateengine may
// mutate after construction, per SPEC_FULL.md §3's ownership rules.
type Cycle struct {
	ID     CycleID
	Swaps  []CycleSwap
	LnRate float64
	Dirty  bool
}

// minCycleLength and maxCycleLength bound the swap count of a well-formed
// cycle, per spec.md §3 ("an ordered non-empty sequence of 2-4 swaps").
const (
	minCycleLength = 2
	maxCycleLength = 4
)

// Canonicalize validates and rotates a candidate swap sequence into its
// canonical form: rotated so the swap with the lexicographically smallest
// pool address comes first. It rejects cycles with the wrong length or a
// repeated pool, both invariant violations per spec.md §3/§8 (S6).
func Canonicalize(swaps []CycleSwap) (Cycle, error) {
	if len(swaps) < minCycleLength || len(swaps) > maxCycleLength {
		return Cycle{}, fmt.Errorf("cyclestore: cycle length %d outside [%d,%d]: %w",
			len(swaps), minCycleLength, maxCycleLength, engine.ErrInvariantViolation)
	}

	seenPools := make(map[engine.Address]struct{}, len(swaps))
	minIdx := 0
	for i, s := range swaps {
		if _, dup := seenPools[s.PoolAddress]; dup {
			return Cycle{}, fmt.Errorf("cyclestore: pool %s appears twice in cycle: %w",
				s.PoolAddress, engine.ErrInvariantViolation)
		}
		seenPools[s.PoolAddress] = struct{}{}
		if bytes.Compare(swaps[i].PoolAddress.Bytes(), swaps[minIdx].PoolAddress.Bytes()) < 0 {
			minIdx = i
		}
	}

	rotated := make([]CycleSwap, len(swaps))
	for i := range swaps {
		rotated[i] = swaps[(minIdx+i)%len(swaps)]
	}

	return Cycle{ID: canonicalID(rotated), Swaps: rotated}, nil
}

func canonicalID(swaps []CycleSwap) CycleID {
	buf := make([]byte, 0, len(swaps)*(20+1))
	for _, s := range swaps {
		buf = append(buf, s.PoolAddress.Bytes()...)
		buf = append(buf, byte(s.Direction))
	}
	return CycleID(crypto.Keccak256Hash(buf))
}
