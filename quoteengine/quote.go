// Package quoteengine implements component C4: for each dirty,
// pre-fee-profitable cycle it computes the optimal trade size and the
// resulting exact, on-chain-executable profit using
// quoteengine/calculator's integer V2 formula. Structurally grounded on
// protocols/uniswapv2/calculator/calculator.go's Calculator/GetAmountOut
// shape, generalized from a single swap to a closed cycle.
package quoteengine

import (
	"math/big"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/holiman/uint256"
)

// SwapQuote is one leg of an executed cycle quote.
type SwapQuote struct {
	PoolAddress engine.Address
	Direction   engine.Direction
	AmountIn    *uint256.Int
	AmountOut   *uint256.Int
	Rate        float64
}

// CycleQuote is the outbound record for one profitable cycle, matching
// the external interface in SPEC_FULL.md §6.
type CycleQuote struct {
	CycleID         cyclestore.CycleID
	SwapQuotes      []SwapQuote
	AmountIn        *uint256.Int
	AmountOut       *uint256.Int
	Profit          *big.Int
	ProfitMarginBps int32
	IsProfitable    bool
}
