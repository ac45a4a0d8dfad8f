package sqlite_test

import (
	"context"
	"testing"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/cyclestore/sqlite"
	"github.com/arbicore/arbicore/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leg(addr byte, dir engine.Direction) cyclestore.CycleSwap {
	return cyclestore.CycleSwap{PoolAddress: common.BytesToAddress([]byte{addr}), Direction: dir}
}

func TestSQLiteRoundTripsCycles(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cycle, err := cyclestore.Canonicalize([]cyclestore.CycleSwap{leg(3, engine.Forward), leg(1, engine.Reverse)})
	require.NoError(t, err)

	require.NoError(t, db.Insert(ctx, cycle))

	loaded, err := db.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, cycle.ID, loaded[0].ID)
	assert.Equal(t, cycle.Swaps, loaded[0].Swaps)
}

func TestSQLiteDeleteContainingRemovesCycleAndItsLegs(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cycleA, err := cyclestore.Canonicalize([]cyclestore.CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)
	cycleB, err := cyclestore.Canonicalize([]cyclestore.CycleSwap{leg(3, engine.Forward), leg(4, engine.Forward)})
	require.NoError(t, err)

	require.NoError(t, db.Insert(ctx, cycleA))
	require.NoError(t, db.Insert(ctx, cycleB))

	removed, err := db.DeleteContaining(ctx, common.BytesToAddress([]byte{1}))
	require.NoError(t, err)
	require.Equal(t, []cyclestore.CycleID{cycleA.ID}, removed)

	loaded, err := db.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, cycleB.ID, loaded[0].ID)

	// LoadAll reconstructs cycles solely from cycle_swaps (sqlite.go never
	// reads the cycles table), so a deleted cycle's legs must be gone too —
	// not merely orphaned — or it would re-materialize on the next load.
	reloaded, err := db.LoadAll(ctx)
	require.NoError(t, err)
	for _, c := range reloaded {
		assert.NotEqual(t, cycleA.ID, c.ID, "deleted cycle must not reappear on a fresh load")
	}
}

func TestSQLiteStoreIntegration(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := cyclestore.NewStore(db)
	_, inserted, err := store.Insert(ctx, []cyclestore.CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)
	assert.True(t, inserted)

	reloaded := cyclestore.NewStore(db)
	require.NoError(t, reloaded.LoadAll(ctx))
	assert.Equal(t, 1, reloaded.NumCycles())
}
