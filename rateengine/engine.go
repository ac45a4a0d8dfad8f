// Package rateengine implements component C3: log-space rate bookkeeping
// and incremental per-block cycle-rate maintenance. It is the sole
// mutator of market.Market's reserve and ln-rate fields (see
// market.Market's doc comment), walking cyclestore.Store's inverted
// index to apply each reserve delta to only the cycles it touches —
// the performance structure protocols/uniswapv2/differ.go applies to
// pool diffs, here applied to cycle log-rates.
package rateengine

import (
	"fmt"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/holiman/uint256"
)

// Update is one pool's new reserve pair, keyed by address so callers never
// need to know market's internal indexing.
type Update struct {
	Pool engine.Address
	R0   *uint256.Int
	R1   *uint256.Int
}

// Engine owns the only code path that mutates market.Market's reserves
// and ln-rates, and keeps cyclestore.Store's cached cycle.LnRate in sync
// via the inverted index.
type Engine struct {
	market *market.Market
	store  *cyclestore.Store

	rebuildIntervalBlocks int
	blocksSinceRebuild    int
}

// New builds a rate engine bound to a market and a bound cycle store
// (Bind must already have been called on store). rebuildIntervalBlocks is
// the periodic full-resync cadence from SPEC_FULL.md §6 (default 1024;
// callers should pass config.RebuildIntervalBlocks).
func New(m *market.Market, store *cyclestore.Store, rebuildIntervalBlocks int) *Engine {
	if rebuildIntervalBlocks <= 0 {
		rebuildIntervalBlocks = 1024
	}
	return &Engine{market: m, store: store, rebuildIntervalBlocks: rebuildIntervalBlocks}
}

// SetReserves applies one pool's new reserves, propagating the resulting
// ln-rate deltas to every cycle touching either of the pool's two swaps.
// It returns the set of cycle indices marked dirty by this call.
func (e *Engine) SetReserves(poolIndex int, r0, r1 *uint256.Int) ([]int, error) {
	deltaFwd, deltaRev, err := e.market.SetReserves(poolIndex, r0, r1)
	if err != nil {
		return nil, err
	}

	touched := make(map[int]struct{})
	e.applyDelta(market.SwapIndex(poolIndex, engine.Forward), deltaFwd, touched)
	e.applyDelta(market.SwapIndex(poolIndex, engine.Reverse), deltaRev, touched)

	dirty := make([]int, 0, len(touched))
	for idx := range touched {
		dirty = append(dirty, idx)
	}
	return dirty, nil
}

// applyDelta marks every cycle touching swapIndex dirty unconditionally,
// even when delta is 0 (e.g. a proportional LP mint/burn that preserves
// the price ratio): absolute reserves still changed, so the optimal trade
// size may have too, and spec.md §4.3 marks dirty on any reserve update,
// not just ones that move ln_rate.
func (e *Engine) applyDelta(swapIndex int, delta float64, touched map[int]struct{}) {
	for _, cycleIdx := range e.store.CyclesForSwap(swapIndex) {
		c := e.store.CycleAt(cycleIdx)
		c.LnRate += delta
		c.Dirty = true
		touched[cycleIdx] = struct{}{}
	}
}

// ApplyUpdates applies a batch of reserve updates, per SPEC_FULL.md §4.3 /
// §7's partial-failure contract: pools unknown to the market are skipped
// and reported under engine.ErrUnknownPool; pools with a non-positive
// reserve are skipped and reported under engine.ErrZeroReserve; every
// other update in the batch still applies. Ordering within Applying
// guarantees no cycle is quoted from a mixed reserve snapshot: all deltas
// from this batch land before the caller proceeds to quoting.
func (e *Engine) ApplyUpdates(updates []Update) (dirty []int, failed map[engine.Address]error) {
	dirtySet := make(map[int]struct{})
	failed = make(map[engine.Address]error)

	for _, u := range updates {
		poolIndex, ok := e.market.PoolIndex(u.Pool)
		if !ok {
			failed[u.Pool] = fmt.Errorf("rateengine: pool %s: %w", u.Pool, engine.ErrUnknownPool)
			continue
		}

		deltaFwd, deltaRev, err := e.market.SetReserves(poolIndex, u.R0, u.R1)
		if err != nil {
			failed[u.Pool] = fmt.Errorf("rateengine: pool %s: %w", u.Pool, err)
			continue
		}

		e.applyDelta(market.SwapIndex(poolIndex, engine.Forward), deltaFwd, dirtySet)
		e.applyDelta(market.SwapIndex(poolIndex, engine.Reverse), deltaRev, dirtySet)
	}

	e.blocksSinceRebuild++
	if e.blocksSinceRebuild >= e.rebuildIntervalBlocks {
		e.Rebuild()
	}

	dirty = make([]int, 0, len(dirtySet))
	for idx := range dirtySet {
		dirty = append(dirty, idx)
	}
	return dirty, failed
}

// Rebuild recomputes every pool's ln-rates from its reserves and every
// cycle's ln-rate from scratch as the sum of its swaps' ln-rates,
// bounding the float64 drift accumulated by repeated incremental deltas
// (SPEC_FULL.md §4.3's numerical contract). It does not touch the Dirty
// flag: a rebuild is a correctness refresh, not a signal that new
// quoting work exists.
func (e *Engine) Rebuild() {
	for poolIndex := 0; poolIndex < e.market.NumPools(); poolIndex++ {
		e.market.RebuildLnRate(poolIndex)
	}

	cycles := e.store.Cycles()
	for i := range cycles {
		c := e.store.CycleAt(i)
		var sum float64
		for _, leg := range c.Swaps {
			poolIndex, ok := e.market.PoolIndex(leg.PoolAddress)
			if !ok {
				continue
			}
			sum += e.market.Swap(market.SwapIndex(poolIndex, leg.Direction)).LnRate
		}
		c.LnRate = sum
	}
	e.blocksSinceRebuild = 0
}
