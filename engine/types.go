// Package engine holds the domain primitives shared by every component of
// the arbitrage core: addresses, tokens, factories, and the sentinel errors
// used across market, cyclestore, rateengine, quoteengine, world and pruner.
package engine

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the 20-byte on-chain identity of a token, factory, or pool.
type Address = common.Address

// Direction selects which side of a pool a swap trades through.
type Direction uint8

const (
	// Forward consumes token0 and produces token1.
	Forward Direction = iota
	// Reverse consumes token1 and produces token0.
	Reverse
)

// Opposite returns the other direction through the same pool.
func (d Direction) Opposite() Direction {
	if d == Forward {
		return Reverse
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// Token is an immutable on-chain ERC20 record. Identity is Address.
type Token struct {
	Address  Address
	Decimals uint8
	Symbol   string
	Name     string
}

// Factory is an immutable AMM deployer record. FeeBps is the swap fee in
// basis points charged by every pool it deploys (typically 30 = 0.30%).
type Factory struct {
	Address Address
	FeeBps  uint16
	Version string
}

// Logger is the structured, leveled logging interface every component
// accepts instead of depending on a concrete logger. Satisfied by a thin
// log/slog adapter at the process boundary (cmd/arbicored).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sentinel errors shared across components, per the error-handling design
// in SPEC_FULL.md §7. Wrapped with fmt.Errorf("...: %w", Err...) at call
// sites so callers can still errors.Is against the sentinel.
var (
	// ErrDuplicatePool is returned when World.New is given two
	// PoolDescriptors with the same address.
	ErrDuplicatePool = errors.New("engine: duplicate pool address")
	// ErrUnknownPool is returned when an update refers to a pool the
	// world has never seen.
	ErrUnknownPool = errors.New("engine: unknown pool")
	// ErrZeroReserve is returned when a reserve update supplies a
	// non-positive reserve for either side of a pool.
	ErrZeroReserve = errors.New("engine: non-positive reserve")
	// ErrInvariantViolation marks a programming error: a cycle
	// referencing an unknown swap, or a duplicate canonical form slipping
	// past the store's dedup check. Callers should treat this as fatal.
	ErrInvariantViolation = errors.New("engine: invariant violation")
	// ErrBusy is returned when World.Update is re-entered while a prior
	// invocation is still in flight.
	ErrBusy = errors.New("engine: world is busy")
)
