package pruner

import (
	"fmt"

	"github.com/arbicore/arbicore/bitset"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/arbicore/arbicore/quoteengine/calculator"
	"github.com/holiman/uint256"
)

// PathLeg is one hop of a CrossCheck result path.
type PathLeg struct {
	PoolAddress engine.Address
	Direction   engine.Direction
}

// crossCheckState is the per-run scratch state for the king-of-the-hill
// relaxation, grounded on chains/base/grapher/graph.go's
// findArbitrageCyclesState (big.Int costs there become uint256.Int here,
// since C6 reuses C4's exact-integer quoting rather than a separate
// high-precision type).
type crossCheckState struct {
	start    int
	costs    []*uint256.Int
	paths    [][]PathLeg
	known    []bitset.BitSet
	bestCost *uint256.Int
}

// CrossCheck is an offline diagnostic, never called from the per-block
// hot path and never mutating cyclestore: it runs a best-effort
// king-of-the-hill relaxation from startToken looking for the
// highest-yield path back to itself for amountIn units, independent of
// whatever cycles EnumerateCycles happened to have already found. A
// result here with no matching cycle in the store is a signal that
// enumeration missed something, for an operator to investigate — not an
// automatic correction.
func (p *Pruner) CrossCheck(startToken int, amountIn *uint256.Int, runs int) (path []PathLeg, bestAmountOut *uint256.Int, found bool, err error) {
	if runs <= 0 {
		runs = 1
	}
	numTokens := p.market.NumTokens()
	if startToken < 0 || startToken >= numTokens {
		return nil, nil, false, fmt.Errorf("pruner: cross-check: token index %d out of range", startToken)
	}

	view := p.market.AdjacencyView()

	state := &crossCheckState{
		start:    startToken,
		costs:    make([]*uint256.Int, numTokens),
		paths:    make([][]PathLeg, numTokens),
		known:    make([]bitset.BitSet, numTokens),
		bestCost: new(uint256.Int),
	}
	for i := range state.costs {
		state.costs[i] = new(uint256.Int)
		state.known[i] = bitset.NewBitSet(uint64(numTokens))
	}
	state.costs[startToken] = new(uint256.Int).Set(amountIn)

	for r := 0; r < runs; r++ {
		for tokenIdx := 0; tokenIdx < numTokens; tokenIdx++ {
			if state.costs[tokenIdx].IsZero() {
				continue
			}
			p.relax(view, state, tokenIdx)
		}
	}

	if len(state.paths[startToken]) == 0 {
		return nil, nil, false, nil
	}
	return state.paths[startToken], state.bestCost, true, nil
}

// relax is the single-source relaxation step: from current, try every
// outgoing edge and keep whichever pool on that edge yields the largest
// amount out, per the teacher's findArbitragePath.
func (p *Pruner) relax(view market.AdjacencyView, state *crossCheckState, current int) {
	currentKnown := state.known[current]
	if currentKnown.IsSet(uint64(current)) {
		return
	}
	currentCost := state.costs[current]
	currentPath := state.paths[current]
	numTokens := len(state.known)

	for _, edgeIdx := range view.Adjacency[current] {
		target := view.EdgeTargets[edgeIdx]
		if currentKnown.IsSet(uint64(target)) && target != state.start {
			continue
		}

		bestOut := new(uint256.Int)
		bestPoolIdx := -1
		for _, poolIdx := range view.EdgePools[edgeIdx] {
			pool := p.market.Pool(poolIdx)
			dir := directionFrom(pool, current)
			reserveIn, reserveOut := pool.Reserve0, pool.Reserve1
			if dir == engine.Reverse {
				reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
			}
			out, err := calculator.GetAmountOut(currentCost, reserveIn, reserveOut, pool.FeeBps)
			if err != nil {
				continue
			}
			if out.Cmp(bestOut) > 0 {
				bestOut = out
				bestPoolIdx = poolIdx
			}
		}
		if bestPoolIdx == -1 {
			continue
		}

		pool := p.market.Pool(bestPoolIdx)
		leg := PathLeg{PoolAddress: pool.Address, Direction: directionFrom(pool, current)}

		if target == state.start {
			if bestOut.Cmp(state.bestCost) <= 0 {
				continue
			}
			state.paths[target] = appendLeg(currentPath, leg)
			state.known[target] = bitset.NewBitSet(uint64(numTokens))
			state.known[target].SetFrom(currentKnown)
			state.known[target].Set(uint64(current))
			state.bestCost = bestOut
			continue
		}

		if bestOut.Cmp(state.costs[target]) <= 0 {
			continue
		}
		state.paths[target] = appendLeg(currentPath, leg)
		state.costs[target] = bestOut
		state.known[target] = bitset.NewBitSet(uint64(numTokens))
		state.known[target].SetFrom(currentKnown)
		state.known[target].Set(uint64(current))
	}
}

func appendLeg(path []PathLeg, leg PathLeg) []PathLeg {
	next := make([]PathLeg, len(path)+1)
	copy(next, path)
	next[len(path)] = leg
	return next
}
