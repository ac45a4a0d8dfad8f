package rateengine

import (
	"context"
	"testing"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersistence struct{ cycles []cyclestore.Cycle }

func (m *memPersistence) LoadAll(context.Context) ([]cyclestore.Cycle, error) { return nil, nil }
func (m *memPersistence) Insert(_ context.Context, c cyclestore.Cycle) error {
	m.cycles = append(m.cycles, c)
	return nil
}
func (m *memPersistence) DeleteContaining(context.Context, engine.Address) ([]cyclestore.CycleID, error) {
	return nil, nil
}

func token(addr byte, symbol string) engine.Token {
	return engine.Token{Address: common.BytesToAddress([]byte{addr}), Decimals: 18, Symbol: symbol}
}

func descriptor(addr byte, t0, t1 engine.Token, r0, r1 int64) market.PoolDescriptor {
	return market.PoolDescriptor{
		Address:  common.BytesToAddress([]byte{addr}),
		Factory:  engine.Factory{Address: common.BytesToAddress([]byte{0xFF}), FeeBps: 30},
		Token0:   t0,
		Token1:   t1,
		Reserve0: uint256.NewInt(uint64(r0)),
		Reserve1: uint256.NewInt(uint64(r1)),
	}
}

// buildTwoPoolCycle wires a two-pool A->B->A cycle (S1 shape) and binds it.
func buildTwoPoolCycle(t *testing.T) (*market.Market, *cyclestore.Store, int, int) {
	t.Helper()
	a := token(1, "A")
	b := token(2, "B")

	m, err := market.New([]market.PoolDescriptor{
		descriptor(10, a, b, 1000, 2000),
		descriptor(11, b, a, 2100, 1000),
	})
	require.NoError(t, err)

	store := cyclestore.NewStore(&memPersistence{})
	ctx := context.Background()
	_, _, err = store.Insert(ctx, []cyclestore.CycleSwap{
		{PoolAddress: common.BytesToAddress([]byte{10}), Direction: engine.Forward},
		{PoolAddress: common.BytesToAddress([]byte{11}), Direction: engine.Forward},
	})
	require.NoError(t, err)

	resolve := func(pool engine.Address, dir engine.Direction) (int, bool) {
		poolIdx, ok := m.PoolIndex(pool)
		if !ok {
			return 0, false
		}
		return market.SwapIndex(poolIdx, dir), true
	}
	require.NoError(t, store.Bind(resolve))

	p1, _ := m.PoolIndex(common.BytesToAddress([]byte{10}))
	p2, _ := m.PoolIndex(common.BytesToAddress([]byte{11}))
	return m, store, p1, p2
}

func TestSetReservesMarksTouchedCyclesDirty(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	dirty, err := eng.SetReserves(p1, uint256.NewInt(1000), uint256.NewInt(2500))
	require.NoError(t, err)
	require.Len(t, dirty, 1)

	c := store.CycleAt(dirty[0])
	assert.True(t, c.Dirty)
}

func TestSetReservesMarksDirtyEvenWhenPriceRatioIsUnchanged(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	// Doubling both reserves (a proportional LP mint) preserves the price
	// ratio and so ln_rate's delta is 0, but the pool's absolute reserves —
	// and therefore its optimal trade size — did change.
	dirty, err := eng.SetReserves(p1, uint256.NewInt(2000), uint256.NewInt(4000))
	require.NoError(t, err)
	require.Len(t, dirty, 1, "a reserve update must mark its cycles dirty even when ln_rate itself doesn't move")

	c := store.CycleAt(dirty[0])
	assert.True(t, c.Dirty)
}

func TestApplyUpdatesReportsUnknownAndZeroReservePools(t *testing.T) {
	m, store, _, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	dirty, failed := eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(1000), R1: uint256.NewInt(2500)},
		{Pool: common.BytesToAddress([]byte{99}), R0: uint256.NewInt(1), R1: uint256.NewInt(1)},
		{Pool: common.BytesToAddress([]byte{11}), R0: uint256.NewInt(0), R1: uint256.NewInt(1)},
	})

	assert.Len(t, dirty, 1)
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[common.BytesToAddress([]byte{99})], engine.ErrUnknownPool)
	assert.ErrorIs(t, failed[common.BytesToAddress([]byte{11})], engine.ErrZeroReserve)
}

func TestApplyUpdatesPreservesOtherUpdatesOnPartialFailure(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	_, failed := eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(1000), R1: uint256.NewInt(2500)},
		{Pool: common.BytesToAddress([]byte{11}), R0: uint256.NewInt(0), R1: uint256.NewInt(1)},
	})
	require.Len(t, failed, 1)

	pool := m.Pool(p1)
	assert.Equal(t, uint64(2500), pool.Reserve1.Uint64(), "unaffected update in the same batch must still apply")
}

func TestRebuildMatchesIncrementalWithinTolerance(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	for i := int64(0); i < 10; i++ {
		_, err := eng.SetReserves(p1, uint256.NewInt(uint64(1000+i*3)), uint256.NewInt(uint64(2000-i*2)))
		require.NoError(t, err)
	}

	cycleIdx := 0
	incremental := store.CycleAt(cycleIdx).LnRate

	eng.Rebuild()
	fromScratch := store.CycleAt(cycleIdx).LnRate

	assert.InDelta(t, incremental, fromScratch, 2*1e-12)
}

func TestApplyUpdateThenRevertRestoresOriginalLnRate(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	cycleIdx := 0
	original := store.CycleAt(cycleIdx).LnRate

	_, err := eng.SetReserves(p1, uint256.NewInt(1000), uint256.NewInt(2500))
	require.NoError(t, err)
	assert.NotEqual(t, original, store.CycleAt(cycleIdx).LnRate)

	_, err = eng.SetReserves(p1, uint256.NewInt(1000), uint256.NewInt(2000))
	require.NoError(t, err)
	assert.InDelta(t, original, store.CycleAt(cycleIdx).LnRate, 1e-12,
		"reverting a pool's reserves to their original values must restore the original log-rate")
}

func TestZeroReserveThenPositiveReserveRecoversOnNextUpdate(t *testing.T) {
	m, store, p1, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 1024)

	dirty, failed := eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(0), R1: uint256.NewInt(2000)},
	})
	assert.Empty(t, dirty)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[common.BytesToAddress([]byte{10})], engine.ErrZeroReserve)

	pool := m.Pool(p1)
	assert.Equal(t, uint64(1000), pool.Reserve0.Uint64(), "rejected update must not mutate the pool's reserves")

	dirty, failed = eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(1200), R1: uint256.NewInt(1800)},
	})
	assert.Empty(t, failed)
	require.Len(t, dirty, 1, "a valid update following a rejected zero-reserve update must succeed normally")
}

func TestRebuildResetsBlockCounter(t *testing.T) {
	m, store, _, _ := buildTwoPoolCycle(t)
	eng := New(m, store, 2)

	_, _ = eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(1000), R1: uint256.NewInt(2500)},
	})
	assert.Equal(t, 1, eng.blocksSinceRebuild)

	_, _ = eng.ApplyUpdates([]Update{
		{Pool: common.BytesToAddress([]byte{10}), R0: uint256.NewInt(1000), R1: uint256.NewInt(2600)},
	})
	assert.Equal(t, 0, eng.blocksSinceRebuild, "periodic rebuild must fire at the configured interval")
}
