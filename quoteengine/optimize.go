package quoteengine

import (
	"math"
	"math/big"

	"github.com/arbicore/arbicore/quoteengine/calculator"
	"github.com/holiman/uint256"
)

// leg is one swap's reserve/fee context, resolved from the live market at
// quote time.
type leg struct {
	reserveIn  *uint256.Int
	reserveOut *uint256.Int
	feeBps     uint16
}

// simulate applies the V2 formula serially along the cycle's legs for a
// given first-leg input, returning the final amountOut in the starting
// token. An error from any leg (overflow, insufficient liquidity) aborts
// the whole cycle — a cycle is only as good as its worst leg.
func simulate(legs []leg, amountIn *uint256.Int) (*uint256.Int, []*uint256.Int, error) {
	outs := make([]*uint256.Int, len(legs))
	current := amountIn
	for i, l := range legs {
		out, err := calculator.GetAmountOut(current, l.reserveIn, l.reserveOut, l.feeBps)
		if err != nil {
			return nil, nil, err
		}
		outs[i] = out
		current = out
	}
	return current, outs, nil
}

// profitAt returns amountOut-amountIn as an int64-safe float64 proxy for
// ternary-search comparison; exact integer profit is recomputed once at
// the end from the winning x. Using float64 here is a detection-only
// shortcut — same "f64 mixed with integer ground truth" split the rate
// engine uses for ln_rate.
func profitAt(legs []leg, amountIn *uint256.Int) (float64, error) {
	out, _, err := simulate(legs, amountIn)
	if err != nil {
		return 0, err
	}
	return out.Float64() - amountIn.Float64(), nil
}

// maxInput returns floor(min_i reserveIn_i * maxSwapFractionBps / 10000),
// the slippage clamp from SPEC_FULL.md §6.
func maxInput(legs []leg, maxSwapFractionBps uint32) *uint256.Int {
	var min *uint256.Int
	for _, l := range legs {
		if min == nil || l.reserveIn.Cmp(min) < 0 {
			min = l.reserveIn
		}
	}
	numerator := new(uint256.Int).Mul(min, uint256.NewInt(uint64(maxSwapFractionBps)))
	return numerator.Div(numerator, uint256.NewInt(10000))
}

// closedFormTwoPool computes the two-pool optimum from SPEC_FULL.md §4.4:
//
//	x* = (sqrt(a*c*b*d*g^2) - a*c) / (c + a*g)
//
// where swap1 has reserves (a,b) and swap2 has (c,d), both at the same
// fee g. Returns ok=false when the two legs carry different fees (no
// single g applies) or the root is non-positive, in which case the
// caller falls back to ternary search.
func closedFormTwoPool(legs []leg) (x *uint256.Int, ok bool) {
	if len(legs) != 2 || legs[0].feeBps != legs[1].feeBps {
		return nil, false
	}
	g := 1 - float64(legs[0].feeBps)/10000

	a := legs[0].reserveIn.Float64()
	b := legs[0].reserveOut.Float64()
	c := legs[1].reserveIn.Float64()
	d := legs[1].reserveOut.Float64()

	root := math.Sqrt(a * c * b * d * g * g)
	numerator := root - a*c
	denominator := c + a*g
	if numerator <= 0 || denominator <= 0 {
		return nil, false
	}

	xf := numerator / denominator
	if xf <= 0 || math.IsInf(xf, 0) || math.IsNaN(xf) {
		return nil, false
	}

	bigX, _ := new(big.Float).SetFloat64(math.Round(xf)).Int(nil)
	rounded, overflow := uint256.FromBig(bigX)
	if overflow {
		return nil, false
	}
	return rounded, true
}

// ternarySearch finds the integer amountIn in [lo,hi] maximizing profit
// over legs, assuming profit(x) is unimodal concave (SPEC_FULL.md §4.4).
// Terminates when the search interval collapses to a single unit.
func ternarySearch(legs []leg, lo, hi *uint256.Int) (*uint256.Int, error) {
	three := uint256.NewInt(3)
	one := uint256.NewInt(1)

	for {
		width := new(uint256.Int).Sub(hi, lo)
		if width.Cmp(one) <= 0 {
			break
		}

		step := new(uint256.Int).Div(width, three)
		if step.IsZero() {
			step = one
		}
		m1 := new(uint256.Int).Add(lo, step)
		m2 := new(uint256.Int).Sub(hi, step)

		p1, err := profitAt(legs, m1)
		if err != nil {
			return nil, err
		}
		p2, err := profitAt(legs, m2)
		if err != nil {
			return nil, err
		}

		if p1 < p2 {
			lo = new(uint256.Int).Add(m1, one)
		} else {
			hi = m2
		}
	}

	bestProfit, err := profitAt(legs, lo)
	if err != nil {
		return nil, err
	}
	hiProfit, err := profitAt(legs, hi)
	if err != nil {
		return nil, err
	}
	if hiProfit > bestProfit {
		return hi, nil
	}
	return lo, nil
}
