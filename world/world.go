// Package world implements component C5: the per-block state machine
// that orchestrates market, cyclestore, rateengine and quoteengine behind
// a single external Update call. State transitions are CAS'd through an
// atomic.Int32 rather than held under a mutex for the hot path itself,
// grounded on protocols/tokenpoolregistry/system.go's
// atomic.Pointer-guarded lock-free-read design.
package world

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/arbicore/arbicore/metrics"
	"github.com/arbicore/arbicore/quoteengine"
	"github.com/arbicore/arbicore/rateengine"
)

// State is one position in the per-block state machine from
// SPEC_FULL.md §5.
type State int32

const (
	Uninitialized State = iota
	Idle
	Applying
	Quoting
	Emitting
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Applying:
		return "applying"
	case Quoting:
		return "quoting"
	case Emitting:
		return "emitting"
	default:
		return "unknown"
	}
}

// Update is the outbound result of one World.Update invocation.
type Update struct {
	Quotes      []quoteengine.CycleQuote
	Partial     bool
	FailedPools map[engine.Address]error
}

// Options configures a new World. Pools and Store must already describe
// a consistent graph (Store should be freshly loaded, unbound); New binds
// Store against the constructed market itself.
type Options struct {
	Pools                 []market.PoolDescriptor
	Store                 *cyclestore.Store
	Logger                engine.Logger
	Metrics               *metrics.Recorder
	RebuildIntervalBlocks int
	MaxSwapFractionBps    uint32
	QuoteBudget           time.Duration
}

// World is the single-actor façade over C1-C4. Its state field is the
// only thing CAS'd concurrently; everything else is single-threaded
// within one Update call, per SPEC_FULL.md §5.
type World struct {
	market *market.Market
	store  *cyclestore.Store
	rates  *rateengine.Engine
	quotes *quoteengine.Engine

	logger  engine.Logger
	metrics *metrics.Recorder

	quoteBudget time.Duration

	state        atomic.Int32
	pendingDirty []int // dirty cycle indices left over from a partial quoting pass
}

// New builds the market from pools, binds the (already-loaded) cycle
// store against it, performs the startup full-rebuild of every log-rate
// (SPEC_FULL.md §2's "initializes all log-rates ... computes each
// cycle's cumulative log-rate"), and transitions to Idle.
func New(opts Options) (*World, error) {
	m, err := market.New(opts.Pools)
	if err != nil {
		return nil, err
	}

	if err := BindStore(m, opts.Store); err != nil {
		return nil, err
	}

	rates := rateengine.New(m, opts.Store, opts.RebuildIntervalBlocks)
	rates.Rebuild()

	quoteBudget := opts.QuoteBudget
	if quoteBudget <= 0 {
		quoteBudget = 1600 * time.Millisecond
	}

	w := &World{
		market:      m,
		store:       opts.Store,
		rates:       rates,
		quotes:      quoteengine.New(m, opts.Store, opts.MaxSwapFractionBps),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		quoteBudget: quoteBudget,
	}
	w.state.Store(int32(Idle))
	return w, nil
}

// BindStore resolves every cycle in store against m's live swap index,
// rebuilding the inverted index (swap -> cycle indices). Used at startup by
// New, and again by a maintenance pass after Insert/DeleteContaining change
// the cycle set — the caller must hold store.Lock() across both the
// mutating calls and this rebind so world.Update never observes a store
// with a stale or missing inverted index.
func BindStore(m *market.Market, store *cyclestore.Store) error {
	resolve := func(pool engine.Address, dir engine.Direction) (int, bool) {
		poolIndex, ok := m.PoolIndex(pool)
		if !ok {
			return 0, false
		}
		return market.SwapIndex(poolIndex, dir), true
	}
	return store.Bind(resolve)
}

// State returns the world's current state.
func (w *World) State() State { return State(w.state.Load()) }

// Market exposes the underlying market graph read-only, for pruner's
// offline enumeration/pruning passes, which run outside world's own
// Update call and need direct access to the live pool set.
func (w *World) Market() *market.Market { return w.market }

// Update applies a batch of reserve changes and returns the resulting
// profitable-cycle quote list. It is rejected with engine.ErrBusy if
// called while a prior Update is still in flight.
func (w *World) Update(changes []rateengine.Update) (*Update, error) {
	if !w.state.CompareAndSwap(int32(Idle), int32(Applying)) {
		return nil, engine.ErrBusy
	}
	defer w.state.Store(int32(Idle))

	// Held for the whole call: a concurrent maintenance pass (pruner) takes
	// store.Lock() around its mutations, so this RLock guarantees the
	// pointers CycleAt hands out below stay valid and CyclesForSwap's
	// inverted index isn't rebuilt mid-Update.
	w.store.RLock()
	defer w.store.RUnlock()

	if w.metrics != nil {
		timer := w.metrics.UpdateTimer()
		defer timer.ObserveDuration()
	}

	dirty, failed := w.rates.ApplyUpdates(changes)
	w.recordApplyOutcome(len(changes), failed)
	if w.metrics != nil {
		w.metrics.ObserveCyclesTouched(len(dirty))
	}

	w.state.Store(int32(Quoting))
	combined := append(w.pendingDirty, dirty...)
	w.pendingDirty = nil

	quotes, partial := w.quoteDirty(combined)

	w.state.Store(int32(Emitting))
	quoteengine.SortByProfitDesc(quotes)

	if w.logger != nil {
		w.logger.Info("world.Update complete",
			"changes", len(changes), "dirty", len(combined),
			"quotes", len(quotes), "partial", partial, "failed_pools", len(failed))
	}

	return &Update{Quotes: quotes, Partial: partial, FailedPools: failed}, nil
}

// quoteDirty evaluates each dirty cycle index under the wall-clock
// budget. Any index not reached before the budget expires is carried
// into pendingDirty so the next Update processes it before new work
// (SPEC_FULL.md §9's back-pressure rule), and the cycle's Dirty flag is
// left set. Indices that are processed have Dirty cleared regardless of
// whether they produced a quote.
func (w *World) quoteDirty(dirty []int) (quotes []quoteengine.CycleQuote, partial bool) {
	if w.metrics != nil {
		timer := w.metrics.QuoteTimer()
		defer timer.ObserveDuration()
	}

	deadline := time.Now().Add(w.quoteBudget)
	quotes = make([]quoteengine.CycleQuote, 0, len(dirty))
	evaluated := 0

	for i, idx := range dirty {
		if time.Now().After(deadline) {
			w.pendingDirty = append(w.pendingDirty, dirty[i:]...)
			partial = true
			break
		}

		evaluated++
		c := w.store.CycleAt(idx)
		q, err := w.quotes.Quote(idx)
		c.Dirty = false

		if err != nil {
			if w.logger != nil {
				w.logger.Warn("quote engine error", "cycle", c.ID.String(), "error", err)
			}
			continue
		}
		if q != nil && q.Profit.Sign() > 0 {
			quotes = append(quotes, *q)
		}
	}

	if w.metrics != nil {
		w.metrics.ObserveCyclesQuoted(evaluated)
		w.metrics.ObserveCyclesProfitable(len(quotes))
	}

	return quotes, partial
}

func (w *World) recordApplyOutcome(requested int, failed map[engine.Address]error) {
	applied := requested - len(failed)
	if w.metrics == nil {
		return
	}
	w.metrics.ObserveUpdateOutcome("applied", applied)
	for _, err := range failed {
		switch {
		case errors.Is(err, engine.ErrUnknownPool):
			w.metrics.ObserveUpdateOutcome("unknown_pool", 1)
		case errors.Is(err, engine.ErrZeroReserve):
			w.metrics.ObserveUpdateOutcome("zero_reserve", 1)
		default:
			w.metrics.ObserveUpdateOutcome("error", 1)
		}
	}
}
