package quoteengine

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTernarySearchFindsALocalMaximum checks the unimodality assumption
// ternarySearch relies on: at the x it returns, profit must not improve by
// nudging the input one unit in either direction. A regression that made
// the search converge on a non-optimal point would show up here even
// though the cycle is still "profitable" overall.
func TestTernarySearchFindsALocalMaximum(t *testing.T) {
	legs := []leg{
		{reserveIn: uint256.NewInt(1_000_000), reserveOut: uint256.NewInt(2_050_000), feeBps: 30},
		{reserveIn: uint256.NewInt(2_000_000), reserveOut: uint256.NewInt(1_030_000), feeBps: 30},
	}

	lo := uint256.NewInt(1)
	hi := uint256.NewInt(50_000)

	x, err := ternarySearch(legs, lo, hi)
	require.NoError(t, err)

	bestProfit, err := profitAt(legs, x)
	require.NoError(t, err)

	if x.Cmp(lo) > 0 {
		below := new(uint256.Int).Sub(x, uint256.NewInt(1))
		belowProfit, err := profitAt(legs, below)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bestProfit, belowProfit, "profit must not improve one unit below the chosen input")
	}
	if x.Cmp(hi) < 0 {
		above := new(uint256.Int).Add(x, uint256.NewInt(1))
		aboveProfit, err := profitAt(legs, above)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bestProfit, aboveProfit, "profit must not improve one unit above the chosen input")
	}
}

// TestProfitAtIsUnimodalAcrossTheSearchRange samples profitAt across the
// whole range and checks it rises then falls at most once, the concavity
// spec.md §8 assumes ternary search can exploit.
func TestProfitAtIsUnimodalAcrossTheSearchRange(t *testing.T) {
	legs := []leg{
		{reserveIn: uint256.NewInt(1_000_000), reserveOut: uint256.NewInt(2_050_000), feeBps: 30},
		{reserveIn: uint256.NewInt(2_000_000), reserveOut: uint256.NewInt(1_030_000), feeBps: 30},
	}

	const samples = 200
	hi := uint256.NewInt(50_000)
	step := new(uint256.Int).Div(hi, uint256.NewInt(samples))

	profits := make([]float64, 0, samples)
	x := uint256.NewInt(1)
	for i := 0; i < samples; i++ {
		p, err := profitAt(legs, x)
		require.NoError(t, err)
		profits = append(profits, p)
		x = new(uint256.Int).Add(x, step)
	}

	rising := true
	descents := 0
	for i := 1; i < len(profits); i++ {
		if profits[i] < profits[i-1] {
			if rising {
				rising = false
				descents++
			}
		} else if profits[i] > profits[i-1] {
			if !rising {
				descents++ // a rise after a fall would be a second peak
			}
			rising = true
		}
	}
	assert.LessOrEqual(t, descents, 1, "profitAt must rise then fall at most once across the sampled range")
}
