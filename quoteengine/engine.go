package quoteengine

import (
	"math/big"
	"sort"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/holiman/uint256"
)

// Engine computes CycleQuotes for dirty, pre-fee-profitable cycles using
// the live market's current reserves.
type Engine struct {
	market *market.Market
	store  *cyclestore.Store

	maxSwapFractionBps uint32
}

// New builds a quote engine. maxSwapFractionBps is the slippage clamp
// from SPEC_FULL.md §6 (default 100 = 1%).
func New(m *market.Market, store *cyclestore.Store, maxSwapFractionBps uint32) *Engine {
	if maxSwapFractionBps == 0 {
		maxSwapFractionBps = 100
	}
	return &Engine{market: m, store: store, maxSwapFractionBps: maxSwapFractionBps}
}

// Quote computes the optimal-size quote for one cycle. It returns
// (nil, nil) when the cycle is not profitable pre-fee (ln_rate<=0) or
// post-fee (amount_out<=amount_in after optimization) — callers should
// treat a nil quote as "drop this cycle", not an error.
func (e *Engine) Quote(cycleIndex int) (*CycleQuote, error) {
	c := e.store.CycleAt(cycleIndex)
	if c.LnRate <= 0 {
		return nil, nil
	}

	legs, err := e.resolveLegs(c)
	if err != nil {
		return nil, err
	}

	xMax := maxInput(legs, e.maxSwapFractionBps)
	if xMax.IsZero() {
		return nil, nil
	}

	var candidate *uint256.Int
	if x, ok := closedFormTwoPool(legs); ok {
		candidate = x
	} else {
		x, err := ternarySearch(legs, uint256.NewInt(1), xMax)
		if err != nil {
			return nil, nil // a leg rejected every trial size; not quotable
		}
		candidate = x
	}

	if candidate.IsZero() {
		candidate = uint256.NewInt(1)
	}
	if candidate.Cmp(xMax) > 0 {
		candidate = xMax
	}

	amountOut, legOuts, err := simulate(legs, candidate)
	if err != nil {
		return nil, nil
	}
	if amountOut.Cmp(candidate) <= 0 {
		return nil, nil
	}

	profit := new(big.Int).Sub(amountOut.ToBig(), candidate.ToBig())
	marginBig := new(big.Int).Div(new(big.Int).Mul(profit, big.NewInt(10000)), candidate.ToBig())

	swapQuotes := make([]SwapQuote, len(legs))
	in := candidate
	for i, s := range c.Swaps {
		swapQuotes[i] = SwapQuote{
			PoolAddress: s.PoolAddress,
			Direction:   s.Direction,
			AmountIn:    in,
			AmountOut:   legOuts[i],
			Rate:        legOuts[i].Float64() / in.Float64(),
		}
		in = legOuts[i]
	}

	return &CycleQuote{
		CycleID:         c.ID,
		SwapQuotes:      swapQuotes,
		AmountIn:        candidate,
		AmountOut:       amountOut,
		Profit:          profit,
		ProfitMarginBps: int32(marginBig.Int64()),
		IsProfitable:    true,
	}, nil
}

// resolveLegs translates a cycle's address-based swaps into concrete
// reserve/fee context from the live market.
func (e *Engine) resolveLegs(c *cyclestore.Cycle) ([]leg, error) {
	legs := make([]leg, len(c.Swaps))
	for i, s := range c.Swaps {
		poolIndex, ok := e.market.PoolIndex(s.PoolAddress)
		if !ok {
			return nil, engine.ErrInvariantViolation
		}
		pool := e.market.Pool(poolIndex)

		var reserveIn, reserveOut *uint256.Int
		if s.Direction == engine.Forward {
			reserveIn, reserveOut = pool.Reserve0, pool.Reserve1
		} else {
			reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
		}
		legs[i] = leg{reserveIn: reserveIn, reserveOut: reserveOut, feeBps: pool.FeeBps}
	}
	return legs, nil
}

// ProfitableCycleQuotes computes quotes for every cycle index in
// dirtyCycles and returns those with profit>0, ordered by descending
// profit with canonical cycle id as tiebreaker (SPEC_FULL.md §4.4). A
// cycle whose Quote call errors is skipped, not fatal to the batch.
func (e *Engine) ProfitableCycleQuotes(dirtyCycles []int) ([]CycleQuote, error) {
	quotes := make([]CycleQuote, 0, len(dirtyCycles))
	for _, idx := range dirtyCycles {
		q, err := e.Quote(idx)
		if err != nil {
			continue
		}
		if q == nil || q.Profit.Sign() <= 0 {
			continue
		}
		quotes = append(quotes, *q)
	}

	SortByProfitDesc(quotes)
	return quotes, nil
}

// SortByProfitDesc orders quotes by descending profit, with canonical
// cycle id as tiebreaker, the ordering contract of
// profitable_cycle_quotes() in SPEC_FULL.md §4.4. Exported so world can
// apply the same ordering to a budget-truncated quote list.
func SortByProfitDesc(quotes []CycleQuote) {
	sort.Slice(quotes, func(i, j int) bool {
		cmp := quotes[i].Profit.Cmp(quotes[j].Profit)
		if cmp != 0 {
			return cmp > 0
		}
		return quotes[i].CycleID.String() < quotes[j].CycleID.String()
	})
}
