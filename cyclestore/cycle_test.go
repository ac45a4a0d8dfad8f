package cyclestore

import (
	"testing"

	"github.com/arbicore/arbicore/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leg(addr byte, dir engine.Direction) CycleSwap {
	return CycleSwap{PoolAddress: common.BytesToAddress([]byte{addr}), Direction: dir}
}

func TestCanonicalizeRejectsShortCycle(t *testing.T) {
	_, err := Canonicalize([]CycleSwap{leg(1, engine.Forward)})
	require.ErrorIs(t, err, engine.ErrInvariantViolation)
}

func TestCanonicalizeRejectsLongCycle(t *testing.T) {
	swaps := []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward), leg(3, engine.Forward), leg(4, engine.Forward), leg(5, engine.Forward)}
	_, err := Canonicalize(swaps)
	require.ErrorIs(t, err, engine.ErrInvariantViolation)
}

func TestCanonicalizeRejectsDuplicatePool(t *testing.T) {
	_, err := Canonicalize([]CycleSwap{leg(1, engine.Forward), leg(1, engine.Reverse)})
	require.ErrorIs(t, err, engine.ErrInvariantViolation)
}

func TestCanonicalizeRotationIsStable(t *testing.T) {
	a := leg(3, engine.Forward)
	b := leg(1, engine.Reverse)
	c := leg(2, engine.Forward)

	rotated1, err := Canonicalize([]CycleSwap{a, b, c})
	require.NoError(t, err)
	rotated2, err := Canonicalize([]CycleSwap{b, c, a})
	require.NoError(t, err)
	rotated3, err := Canonicalize([]CycleSwap{c, a, b})
	require.NoError(t, err)

	assert.Equal(t, rotated1.ID, rotated2.ID)
	assert.Equal(t, rotated1.ID, rotated3.ID)
	assert.Equal(t, b, rotated1.Swaps[0], "rotation starts at smallest pool address")
}

func TestCanonicalizeDifferentDirectionIsDifferentCycle(t *testing.T) {
	fwd, err := Canonicalize([]CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)
	rev, err := Canonicalize([]CycleSwap{leg(1, engine.Reverse), leg(2, engine.Forward)})
	require.NoError(t, err)

	assert.NotEqual(t, fwd.ID, rev.ID)
}
