// Package pruner implements component C6: the offline maintenance pass
// that keeps the candidate cycle set current — dropping cycles through
// pools that have gone illiquid and discovering new candidate cycles as
// the market graph grows. It is never on the per-block hot path
// (SPEC_FULL.md §4.6/§5); callers run it on a slow interval or on demand.
package pruner

import (
	"context"
	"fmt"

	"github.com/arbicore/arbicore/bitset"
	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/arbicore/arbicore/metrics"
)

// hardMaxCycleLength mirrors cyclestore's own Canonicalize bound; a
// misconfigured MaxCycleLength above this is clamped rather than left to
// fail one Insert at a time.
const hardMaxCycleLength = 4

// Pruner holds the configuration and dependencies for one maintenance
// pass. It is stateless between calls beyond what market and store
// already hold.
type Pruner struct {
	market  *market.Market
	store   *cyclestore.Store
	metrics *metrics.Recorder
	logger  engine.Logger

	maxCycleLength    int
	minPoolReserveRef float64
}

// New builds a Pruner. maxCycleLength is clamped to [2, 4]; a value <2
// is raised to the 2-leg minimum a cycle can have.
func New(m *market.Market, store *cyclestore.Store, rec *metrics.Recorder, logger engine.Logger, maxCycleLength int, minPoolReserveRef float64) *Pruner {
	if maxCycleLength < 2 {
		maxCycleLength = 2
	}
	if maxCycleLength > hardMaxCycleLength {
		maxCycleLength = hardMaxCycleLength
	}
	return &Pruner{
		market:            m,
		store:             store,
		metrics:           rec,
		logger:            logger,
		maxCycleLength:    maxCycleLength,
		minPoolReserveRef: minPoolReserveRef,
	}
}

// PruneIlliquidPools removes every cycle touching a pool whose reserve
// reference value — the smaller of its two reserves, expressed as a raw
// float64 unit count — has fallen below minPoolReserveRef. Market itself
// is left untouched: it is rebuilt fresh from the next sync snapshot, so
// pruning only needs to keep cyclestore from quoting through a pool that
// can no longer support a meaningful trade. Mutates the store's
// structural state (DeleteContaining); the caller must hold store.Lock()
// across this call and the Bind that follows it.
func (p *Pruner) PruneIlliquidPools(ctx context.Context) (int, error) {
	pruned := 0
	poolsPruned := 0
	for i := 0; i < p.market.NumPools(); i++ {
		pool := p.market.Pool(i)
		if p.referenceValue(pool) >= p.minPoolReserveRef {
			continue
		}

		n, err := p.store.DeleteContaining(ctx, pool.Address)
		if err != nil {
			return pruned, fmt.Errorf("pruner: prune pool %s: %w", pool.Address, err)
		}
		if n > 0 {
			poolsPruned++
			if p.logger != nil {
				p.logger.Info("pruned illiquid pool", "pool", pool.Address, "cycles_removed", n)
			}
		}
		pruned += n
	}

	if p.metrics != nil {
		p.metrics.ObservePoolsPruned(poolsPruned)
	}
	return pruned, nil
}

func (p *Pruner) referenceValue(pool market.Pool) float64 {
	r0 := pool.Reserve0.Float64()
	r1 := pool.Reserve1.Float64()
	if r0 < r1 {
		return r0
	}
	return r1
}

// EnumerateCycles walks every token as a cycle start over the market's
// adjacency view, expanding simple pool-disjoint paths up to
// maxCycleLength edges, and idempotently inserts every distinct cycle it
// closes back to its start into the store. It returns the number of
// genuinely new cycles inserted (Insert is a no-op for ones already
// known). Mutates the store's structural state (Insert); the caller must
// hold store.Lock() across this call and the Bind that follows it.
func (p *Pruner) EnumerateCycles(ctx context.Context) (int, error) {
	view := p.market.AdjacencyView()
	numPools := p.market.NumPools()
	inserted := 0

	var walkErr error
	var walk func(start, current int, used bitset.BitSet, swaps []cyclestore.CycleSwap)
	walk = func(start, current int, used bitset.BitSet, swaps []cyclestore.CycleSwap) {
		if walkErr != nil || len(swaps) >= p.maxCycleLength {
			return
		}

		for _, edgeIdx := range view.Adjacency[current] {
			target := view.EdgeTargets[edgeIdx]

			for _, poolIdx := range view.EdgePools[edgeIdx] {
				if used.IsSet(uint64(poolIdx)) {
					continue
				}

				pool := p.market.Pool(poolIdx)
				leg := cyclestore.CycleSwap{PoolAddress: pool.Address, Direction: directionFrom(pool, current)}
				nextSwaps := append(append([]cyclestore.CycleSwap{}, swaps...), leg)

				if target == start {
					if len(nextSwaps) < 2 {
						continue
					}
					_, didInsert, err := p.store.Insert(ctx, nextSwaps)
					if err != nil {
						walkErr = fmt.Errorf("pruner: insert enumerated cycle: %w", err)
						return
					}
					if didInsert {
						inserted++
					}
					continue
				}

				nextUsed := bitset.NewBitSet(uint64(numPools))
				nextUsed.SetFrom(used)
				nextUsed.Set(uint64(poolIdx))
				walk(start, target, nextUsed, nextSwaps)
				if walkErr != nil {
					return
				}
			}
		}
	}

	for start := 0; start < p.market.NumTokens(); start++ {
		walk(start, start, bitset.NewBitSet(uint64(numPools)), nil)
		if walkErr != nil {
			return inserted, walkErr
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveCyclesEnumerated(inserted)
	}
	return inserted, nil
}

// directionFrom reports which side of pool is being entered from
// fromToken: Forward if fromToken is the pool's token0, Reverse
// otherwise.
func directionFrom(pool market.Pool, fromToken int) engine.Direction {
	if pool.Token0 == fromToken {
		return engine.Forward
	}
	return engine.Reverse
}
