// Package calculator implements the Uniswap V2 constant-product swap
// formula over exact 256-bit unsigned integers, matching on-chain
// semantics so a produced quote is directly executable without
// re-derivation. It is structurally grounded on
// protocols/uniswapv2/calculator/calculator.go: a pool of reusable
// scratch integers behind a sync.Pool, sized here for uint256's 256-bit
// width instead of unbounded big.Int, with a math/big fallback for the
// rare pool whose intermediate product legitimately exceeds 256 bits.
package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

var (
	// feeDivisor is 100% in basis points (10000), the same scale the
	// teacher's calculator uses for its fee multiplier.
	feeDivisor = uint256.NewInt(10000)

	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("calculator: nil amount")
	// ErrInsufficientLiquidity is returned when requested amountOut is >=
	// the available reserve.
	ErrInsufficientLiquidity = errors.New("calculator: insufficient liquidity for swap")
	// ErrZeroReserve is returned when either reserve is zero.
	ErrZeroReserve = errors.New("calculator: zero reserve")
	// ErrOverflow is returned when even the math/big fallback path
	// produces a result that no longer fits in 256 bits — a pool with
	// reserves outside any real on-chain range.
	ErrOverflow = errors.New("calculator: result overflows 256 bits")
)

// scratch holds reusable uint256.Int objects to avoid per-call heap
// allocation on the quoting hot path.
type scratch struct {
	feeMultiplier   uint256.Int
	amountInWithFee uint256.Int
	numerator       uint256.Int
	denominator     uint256.Int
}

var scratchPool = sync.Pool{
	New: func() any { return new(scratch) },
}

// GetAmountOut computes the V2 output amount for amountIn traded against
// (reserveIn, reserveOut) at the given fee (basis points out of 10000):
// amountOut = floor(amountIn * (10000-feeBps) * reserveOut / (reserveIn*10000 + amountIn*(10000-feeBps))).
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrZeroReserve
	}
	if amountIn.IsZero() {
		return new(uint256.Int), nil
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	s.feeMultiplier.SubUint64(feeDivisor, uint64(feeBps))

	overflowed := false
	overflowed = s.amountInWithFee.MulOverflow(amountIn, &s.feeMultiplier) || overflowed
	overflowed = s.numerator.MulOverflow(reserveOut, &s.amountInWithFee) || overflowed
	overflowed = s.denominator.MulOverflow(reserveIn, feeDivisor) || overflowed
	overflowed = s.denominator.AddOverflow(&s.denominator, &s.amountInWithFee) || overflowed
	if overflowed {
		return bigAmountOut(amountIn, reserveIn, reserveOut, feeBps)
	}
	if s.denominator.IsZero() {
		return nil, fmt.Errorf("calculator: pool denominator is zero")
	}

	out := new(uint256.Int).Div(&s.numerator, &s.denominator)
	return out, nil
}

// bigAmountOut recomputes GetAmountOut's formula over math/big, for the
// rare pool whose reserves push an intermediate product past 256 bits.
// Grounded on protocols/uniswapv2/calculator/calculator.go's own
// math/big usage throughout.
func bigAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	feeMultiplier := new(big.Int).Sub(big.NewInt(10000), big.NewInt(int64(feeBps)))
	amountInWithFee := new(big.Int).Mul(amountIn.ToBig(), feeMultiplier)
	numerator := new(big.Int).Mul(reserveOut.ToBig(), amountInWithFee)
	denominator := new(big.Int).Mul(reserveIn.ToBig(), big.NewInt(10000))
	denominator.Add(denominator, amountInWithFee)
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("calculator: pool denominator is zero")
	}

	result := numerator.Div(numerator, denominator)
	out, overflow := uint256.FromBig(result)
	if overflow {
		return nil, fmt.Errorf("%w: amountOut", ErrOverflow)
	}
	return out, nil
}

// GetAmountIn computes the required input to receive exactly amountOut
// from (reserveIn, reserveOut) at the given fee, the V2 inverse formula.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrZeroReserve
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: amountOut %s >= reserveOut %s", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	var numerator uint256.Int
	overflowed := numerator.MulOverflow(reserveIn, amountOut)
	overflowed = numerator.MulOverflow(&numerator, feeDivisor) || overflowed

	s.feeMultiplier.SubUint64(feeDivisor, uint64(feeBps))
	var denominator uint256.Int
	denominator.Sub(reserveOut, amountOut)
	overflowed = denominator.MulOverflow(&denominator, &s.feeMultiplier) || overflowed
	if overflowed {
		return bigAmountIn(amountOut, reserveIn, reserveOut, feeBps)
	}
	if denominator.IsZero() {
		return nil, fmt.Errorf("calculator: pool denominator is zero")
	}

	in := new(uint256.Int).Div(&numerator, &denominator)
	return in.AddUint64(in, 1), nil
}

// bigAmountIn is bigAmountOut's counterpart for the inverse formula.
func bigAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	numerator := new(big.Int).Mul(reserveIn.ToBig(), amountOut.ToBig())
	numerator.Mul(numerator, big.NewInt(10000))

	feeMultiplier := new(big.Int).Sub(big.NewInt(10000), big.NewInt(int64(feeBps)))
	denominator := new(big.Int).Sub(reserveOut.ToBig(), amountOut.ToBig())
	denominator.Mul(denominator, feeMultiplier)
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("calculator: pool denominator is zero")
	}

	result := numerator.Div(numerator, denominator)
	result.Add(result, big.NewInt(1))
	in, overflow := uint256.FromBig(result)
	if overflow {
		return nil, fmt.Errorf("%w: amountIn", ErrOverflow)
	}
	return in, nil
}
