// Package market implements the in-memory market graph (component C1):
// tokens, factories, pools and the directed swaps a pool induces, all
// interned in address-indexed, struct-of-arrays slices in the style of
// protocols/tokenpoolregistry/registry.go's TokenPoolRegistry.
//
// Tokens, factories and pools are immutable after construction and shared
// freely. Reserve and ln-rate mutation is exposed only through SetReserves
// and RebuildLnRate, which rateengine.Engine calls exclusively.
package market

import (
	"fmt"
	"math"

	"github.com/arbicore/arbicore/engine"
	"github.com/holiman/uint256"
)

// PoolDescriptor is the inbound shape sync workers supply, per the World
// façade's external interface (SPEC_FULL.md §6): a pool address, its
// factory (carrying the fee rate), the ordered token pair, and the current
// reserves.
type PoolDescriptor struct {
	Address  engine.Address
	Factory  engine.Factory
	Token0   engine.Token
	Token1   engine.Token
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

// Pool is the immutable-identity, mutable-reserve record for one AMM
// instance. Token0/Token1 are indices into Market.tokens. Reserve0/Reserve1
// are mutated exclusively via Market.SetReserves, and the two swap ln-rates
// via Market.SetReserves and Market.RebuildLnRate, both called by
// rateengine.
type Pool struct {
	Address  engine.Address
	Factory  engine.Address
	FeeBps   uint16
	Token0   int
	Token1   int
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

// Swap is a directed pool side. Identity is (pool address, direction);
// represented here as (poolIndex, direction). LnRate is ln(rOut/rIn) for
// the current reserves, maintained incrementally by rateengine.
type Swap struct {
	Pool      int
	Direction engine.Direction
	LnRate    float64
}

// AdjacencyView is a read-only snapshot of the token-pool graph shaped for
// offline traversal (pruner's enumeration pass), grounded on
// protocols/tokenpoolregistry/registry.go's TokenPoolRegistryView.
type AdjacencyView struct {
	// Adjacency[tokenIndex] lists edge indices leaving that token.
	Adjacency [][]int
	// EdgeTargets[edgeIndex] is the token index the edge arrives at.
	EdgeTargets []int
	// EdgePools[edgeIndex] lists the pool indices offering that edge.
	EdgePools [][]int
}

// Market is the address-indexed, interned token-pool graph. It is built
// once from a complete set of PoolDescriptors and lives for the process
// lifetime; only reserves and ln-rates mutate thereafter.
type Market struct {
	tokens     []engine.Token
	tokenIndex map[engine.Address]int

	factories     []engine.Factory
	factoryIndex  map[engine.Address]int

	pools     []Pool
	poolIndex map[engine.Address]int

	// swaps holds 2 entries per pool: swaps[2*i] is the forward swap for
	// pool i, swaps[2*i+1] is the reverse swap.
	swaps []Swap
}

// New builds a Market from a complete set of pool descriptors. Duplicate
// pool addresses fail construction with engine.ErrDuplicatePool, matching
// the World façade's init-time contract.
func New(descriptors []PoolDescriptor) (*Market, error) {
	m := &Market{
		tokenIndex:   make(map[engine.Address]int),
		factoryIndex: make(map[engine.Address]int),
		poolIndex:    make(map[engine.Address]int, len(descriptors)),
		pools:        make([]Pool, 0, len(descriptors)),
		swaps:        make([]Swap, 0, len(descriptors)*2),
	}

	for _, d := range descriptors {
		if _, exists := m.poolIndex[d.Address]; exists {
			return nil, fmt.Errorf("market.New: pool %s: %w", d.Address, engine.ErrDuplicatePool)
		}
		if d.Reserve0 == nil || d.Reserve1 == nil {
			return nil, fmt.Errorf("market.New: pool %s: %w", d.Address, engine.ErrZeroReserve)
		}

		token0Index := m.internToken(d.Token0)
		token1Index := m.internToken(d.Token1)
		m.internFactory(d.Factory)

		poolIndex := len(m.pools)
		m.pools = append(m.pools, Pool{
			Address:  d.Address,
			Factory:  d.Factory.Address,
			FeeBps:   d.Factory.FeeBps,
			Token0:   token0Index,
			Token1:   token1Index,
			Reserve0: new(uint256.Int).Set(d.Reserve0),
			Reserve1: new(uint256.Int).Set(d.Reserve1),
		})
		m.poolIndex[d.Address] = poolIndex

		fwd, rev, err := lnRates(d.Reserve0, d.Reserve1)
		if err != nil {
			return nil, fmt.Errorf("market.New: pool %s: %w", d.Address, err)
		}
		m.swaps = append(m.swaps,
			Swap{Pool: poolIndex, Direction: engine.Forward, LnRate: fwd},
			Swap{Pool: poolIndex, Direction: engine.Reverse, LnRate: rev},
		)
	}

	return m, nil
}

func (m *Market) internToken(t engine.Token) int {
	if idx, ok := m.tokenIndex[t.Address]; ok {
		return idx
	}
	idx := len(m.tokens)
	m.tokens = append(m.tokens, t)
	m.tokenIndex[t.Address] = idx
	return idx
}

func (m *Market) internFactory(f engine.Factory) int {
	if idx, ok := m.factoryIndex[f.Address]; ok {
		return idx
	}
	idx := len(m.factories)
	m.factories = append(m.factories, f)
	m.factoryIndex[f.Address] = idx
	return idx
}

// lnRates computes the forward and reverse ln-rates for a pair of
// reserves, enforcing the ZeroReserve invariant from SPEC_FULL.md §3.
func lnRates(r0, r1 *uint256.Int) (fwd, rev float64, err error) {
	if r0.IsZero() || r1.IsZero() {
		return 0, 0, engine.ErrZeroReserve
	}
	f0 := r0.Float64()
	f1 := r1.Float64()
	fwd = math.Log(f1) - math.Log(f0)
	rev = -fwd
	return fwd, rev, nil
}

// NumPools returns the number of interned pools.
func (m *Market) NumPools() int { return len(m.pools) }

// NumTokens returns the number of interned tokens.
func (m *Market) NumTokens() int { return len(m.tokens) }

// PoolIndex resolves a pool address to its internal index.
func (m *Market) PoolIndex(addr engine.Address) (int, bool) {
	idx, ok := m.poolIndex[addr]
	return idx, ok
}

// TokenIndex resolves a token address to its internal index.
func (m *Market) TokenIndex(addr engine.Address) (int, bool) {
	idx, ok := m.tokenIndex[addr]
	return idx, ok
}

// Pool returns the pool at the given index by value. Reserve0/Reserve1
// pointers alias the market's live state and must not be mutated by
// callers.
func (m *Market) Pool(index int) Pool { return m.pools[index] }

// Token returns the token at the given index.
func (m *Market) Token(index int) engine.Token { return m.tokens[index] }

// Pools returns the full pool list. Callers must not mutate the returned
// slice or its Reserve fields.
func (m *Market) Pools() []Pool { return m.pools }

// SwapIndex returns the flat swap-array index for a (pool, direction) pair,
// the swap identity per SPEC_FULL.md §3.
func SwapIndex(poolIndex int, dir engine.Direction) int {
	return poolIndex*2 + int(dir)
}

// Swap returns the swap at the given flat index.
func (m *Market) Swap(index int) Swap { return m.swaps[index] }

// NumSwaps returns 2*NumPools().
func (m *Market) NumSwaps() int { return len(m.swaps) }

// SetReserves validates and applies a new reserve pair to the pool,
// updating both cached ln-rates. It returns the ln-rate deltas
// (new - old) for each direction so rateengine can propagate them through
// the cycle inverted index without recomputing from scratch. Invalid
// (non-positive) reserves are rejected with engine.ErrZeroReserve and
// leave the pool's state untouched.
func (m *Market) SetReserves(poolIndex int, r0, r1 *uint256.Int) (deltaFwd, deltaRev float64, err error) {
	pool := &m.pools[poolIndex]

	newFwd, newRev, err := lnRates(r0, r1)
	if err != nil {
		return 0, 0, err
	}

	fwdSwap := &m.swaps[SwapIndex(poolIndex, engine.Forward)]
	revSwap := &m.swaps[SwapIndex(poolIndex, engine.Reverse)]

	deltaFwd = newFwd - fwdSwap.LnRate
	deltaRev = newRev - revSwap.LnRate

	pool.Reserve0 = new(uint256.Int).Set(r0)
	pool.Reserve1 = new(uint256.Int).Set(r1)
	fwdSwap.LnRate = newFwd
	revSwap.LnRate = newRev

	return deltaFwd, deltaRev, nil
}

// RebuildLnRate recomputes a single swap's ln-rate from the pool's current
// reserves, bypassing incremental deltas. Used by rateengine's periodic
// full resync (SPEC_FULL.md §4.3's drift-correction safety net).
func (m *Market) RebuildLnRate(poolIndex int) {
	pool := &m.pools[poolIndex]
	fwd, rev, err := lnRates(pool.Reserve0, pool.Reserve1)
	if err != nil {
		// Reserves were valid at SetReserves time and are never mutated
		// elsewhere; this should be unreachable.
		panic(fmt.Sprintf("market: pool %s has invalid reserves during rebuild: %v", pool.Address, err))
	}
	m.swaps[SwapIndex(poolIndex, engine.Forward)].LnRate = fwd
	m.swaps[SwapIndex(poolIndex, engine.Reverse)].LnRate = rev
}

// AdjacencyView builds a fresh traversal snapshot of the token-pool graph.
// Grounded on protocols/tokenpoolregistry/registry.go's view(): a clique is
// formed between the two tokens of each pool, directed both ways.
func (m *Market) AdjacencyView() AdjacencyView {
	numTokens := len(m.tokens)
	adjacency := make([][]int, numTokens)
	var edgeTargets []int
	var edgePools [][]int

	// edgeKey maps (fromToken, toToken) -> edge index, so multiple pools
	// between the same pair share one edge with a multi-pool list.
	edgeKey := make(map[[2]int]int)

	addEdge := func(from, to, poolIndex int) {
		key := [2]int{from, to}
		if edgeIdx, ok := edgeKey[key]; ok {
			edgePools[edgeIdx] = append(edgePools[edgeIdx], poolIndex)
			return
		}
		edgeIdx := len(edgeTargets)
		edgeKey[key] = edgeIdx
		edgeTargets = append(edgeTargets, to)
		edgePools = append(edgePools, []int{poolIndex})
		adjacency[from] = append(adjacency[from], edgeIdx)
	}

	for poolIndex, pool := range m.pools {
		addEdge(pool.Token0, pool.Token1, poolIndex)
		addEdge(pool.Token1, pool.Token0, poolIndex)
	}

	return AdjacencyView{
		Adjacency:   adjacency,
		EdgeTargets: edgeTargets,
		EdgePools:   edgePools,
	}
}
