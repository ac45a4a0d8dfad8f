package cyclestore

import (
	"context"
	"testing"

	"github.com/arbicore/arbicore/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersistence is an in-memory stand-in for cyclestore/sqlite, isolating
// Store's logic from the real database adapter in these tests.
type memPersistence struct {
	cycles []Cycle
}

func (m *memPersistence) LoadAll(ctx context.Context) ([]Cycle, error) {
	return append([]Cycle(nil), m.cycles...), nil
}

func (m *memPersistence) Insert(ctx context.Context, c Cycle) error {
	m.cycles = append(m.cycles, c)
	return nil
}

func (m *memPersistence) DeleteContaining(ctx context.Context, pool engine.Address) ([]CycleID, error) {
	var removed []CycleID
	kept := m.cycles[:0:0]
	for _, c := range m.cycles {
		hit := false
		for _, s := range c.Swaps {
			if s.PoolAddress == pool {
				hit = true
				break
			}
		}
		if hit {
			removed = append(removed, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	m.cycles = kept
	return removed, nil
}

func TestStoreInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&memPersistence{})

	swaps := []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)}

	c1, inserted1, err := s.Insert(ctx, swaps)
	require.NoError(t, err)
	assert.True(t, inserted1)

	c2, inserted2, err := s.Insert(ctx, []CycleSwap{leg(2, engine.Forward), leg(1, engine.Forward)})
	require.NoError(t, err)
	assert.False(t, inserted2, "rotated duplicate must not insert again")
	assert.Equal(t, c1.ID, c2.ID)

	assert.Equal(t, 1, s.NumCycles())
}

func TestStoreDeleteContainingRemovesOnlyMatches(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&memPersistence{})

	_, _, err := s.Insert(ctx, []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)
	_, _, err = s.Insert(ctx, []CycleSwap{leg(3, engine.Forward), leg(4, engine.Forward)})
	require.NoError(t, err)

	removed, err := s.DeleteContaining(ctx, common.BytesToAddress([]byte{1}))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.NumCycles())
}

func TestStoreBindBuildsInvertedIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&memPersistence{})

	_, _, err := s.Insert(ctx, []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)

	resolve := func(pool engine.Address, dir engine.Direction) (int, bool) {
		switch pool {
		case common.BytesToAddress([]byte{1}):
			return 10, true
		case common.BytesToAddress([]byte{2}):
			return 20, true
		default:
			return 0, false
		}
	}

	require.NoError(t, s.Bind(resolve))
	assert.Equal(t, []int{0}, s.CyclesForSwap(10))
	assert.Equal(t, []int{0}, s.CyclesForSwap(20))
	assert.Nil(t, s.CyclesForSwap(999))
}

func TestStoreBindFailsOnUnresolvedSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&memPersistence{})

	_, _, err := s.Insert(ctx, []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)

	err = s.Bind(func(pool engine.Address, dir engine.Direction) (int, bool) { return 0, false })
	require.ErrorIs(t, err, engine.ErrInvariantViolation)
}

func TestStoreLoadAllReplacesState(t *testing.T) {
	ctx := context.Background()
	persistence := &memPersistence{}
	s := NewStore(persistence)

	_, _, err := s.Insert(ctx, []CycleSwap{leg(1, engine.Forward), leg(2, engine.Forward)})
	require.NoError(t, err)

	fresh := NewStore(persistence)
	require.NoError(t, fresh.LoadAll(ctx))
	assert.Equal(t, 1, fresh.NumCycles())
}
