// Package metrics instruments world and pruner via Prometheus, grounded
// on differ/differ.go's NewMetrics(registry)/prometheus.NewTimer pattern:
// a single struct of pre-registered collectors, injected rather than
// resolved through a global registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds every collector arbicore exports. One Recorder is built
// per process and passed by reference into world.World and pruner.Pruner.
type Recorder struct {
	updatesApplied   *prometheus.CounterVec
	cyclesTouched    prometheus.Counter
	cyclesQuoted     prometheus.Counter
	cyclesProfitable prometheus.Counter
	updateDuration   prometheus.Histogram
	quoteDuration    prometheus.Histogram
	poolsPruned      prometheus.Counter
	cyclesEnumerated prometheus.Counter
}

// New registers every collector against reg and returns the Recorder.
// Passing a non-nil, dedicated registry (not prometheus.DefaultRegisterer)
// at each call site avoids double-registration panics across tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		updatesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "pool_updates_total",
			Help:      "Pool reserve updates applied, partitioned by outcome.",
		}, []string{"outcome"}),
		cyclesTouched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "cycles_touched_total",
			Help:      "Cycles marked dirty by a reserve update batch.",
		}),
		cyclesQuoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "cycles_quoted_total",
			Help:      "Cycles the quote engine evaluated.",
		}),
		cyclesProfitable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "cycles_profitable_total",
			Help:      "Cycles that produced a positive-profit quote.",
		}),
		updateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "update_duration_seconds",
			Help:      "Wall-clock time of one World.Update invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		quoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbicore",
			Subsystem: "world",
			Name:      "quote_duration_seconds",
			Help:      "Wall-clock time spent in the quoting phase of one update.",
			Buckets:   prometheus.DefBuckets,
		}),
		poolsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "pruner",
			Name:      "pools_pruned_total",
			Help:      "Pools removed for falling below the liquidity threshold.",
		}),
		cyclesEnumerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbicore",
			Subsystem: "pruner",
			Name:      "cycles_enumerated_total",
			Help:      "New candidate cycles emitted by an enumeration pass.",
		}),
	}

	reg.MustRegister(
		r.updatesApplied, r.cyclesTouched, r.cyclesQuoted, r.cyclesProfitable,
		r.updateDuration, r.quoteDuration, r.poolsPruned, r.cyclesEnumerated,
	)
	return r
}

// ObserveUpdateOutcome increments the per-outcome pool-update counter.
// outcome is one of "applied", "unknown_pool", "zero_reserve", "error".
func (r *Recorder) ObserveUpdateOutcome(outcome string, n int) {
	r.updatesApplied.WithLabelValues(outcome).Add(float64(n))
}

// ObserveCyclesTouched records how many cycles a batch marked dirty.
func (r *Recorder) ObserveCyclesTouched(n int) { r.cyclesTouched.Add(float64(n)) }

// ObserveCyclesQuoted records how many cycles the quote phase evaluated.
func (r *Recorder) ObserveCyclesQuoted(n int) { r.cyclesQuoted.Add(float64(n)) }

// ObserveCyclesProfitable records how many cycles produced a quote.
func (r *Recorder) ObserveCyclesProfitable(n int) { r.cyclesProfitable.Add(float64(n)) }

// UpdateTimer starts a timer that records into the update-duration
// histogram when stopped, mirroring differ.go's prometheus.NewTimer use.
func (r *Recorder) UpdateTimer() *prometheus.Timer {
	return prometheus.NewTimer(r.updateDuration)
}

// QuoteTimer starts a timer for the quoting phase specifically.
func (r *Recorder) QuoteTimer() *prometheus.Timer {
	return prometheus.NewTimer(r.quoteDuration)
}

// ObservePoolsPruned records pools removed by one pruning pass.
func (r *Recorder) ObservePoolsPruned(n int) { r.poolsPruned.Add(float64(n)) }

// ObserveCyclesEnumerated records cycles newly emitted by one enumeration pass.
func (r *Recorder) ObserveCyclesEnumerated(n int) { r.cyclesEnumerated.Add(float64(n)) }
