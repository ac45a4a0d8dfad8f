// Command arbicored is the arbicore process entrypoint: it loads
// configuration, wires market/cyclestore/rateengine/quoteengine into a
// world.World, runs pruner on a slow maintenance interval, and consumes
// reserve-update batches from stdin, logging profitable cycle quotes as
// they're found. Grounded structurally on cmd/client/main.go: a JSON slog
// handler, signal.NotifyContext for graceful shutdown, and a single
// for { select } consumer loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arbicore/arbicore/config"
	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/cyclestore/sqlite"
	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/metrics"
	"github.com/arbicore/arbicore/pruner"
	"github.com/arbicore/arbicore/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	rootLogger := slog.New(newLogHandler(cfg.Log))
	logger := slogLogger{logger: rootLogger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)
	go serveMetrics(cfg.Metrics.ListenAddr, registry, rootLogger)

	persistence, err := sqlite.Open(cfg.Storage.DSN)
	if err != nil {
		rootLogger.Error("failed to open cycle store", "dsn", cfg.Storage.DSN, "error", err)
		os.Exit(1)
	}
	defer persistence.Close()

	store := cyclestore.NewStore(persistence)
	if err := store.LoadAll(ctx); err != nil {
		rootLogger.Error("failed to load cycle store", "error", err)
		os.Exit(1)
	}

	stdin := bufio.NewReader(os.Stdin)
	pools, err := readInitialSnapshot(stdin)
	if err != nil {
		rootLogger.Error("failed to read initial pool snapshot", "error", err)
		os.Exit(1)
	}

	w, err := world.New(world.Options{
		Pools:                 pools,
		Store:                 store,
		Logger:                logger,
		Metrics:               recorder,
		RebuildIntervalBlocks: cfg.Quoting.RebuildIntervalBlocks,
		MaxSwapFractionBps:    cfg.Quoting.MaxSwapFractionBps,
		QuoteBudget:           cfg.QuoteBudget(),
	})
	if err != nil {
		rootLogger.Error("failed to initialize world", "error", err)
		os.Exit(1)
	}

	go runMaintenance(ctx, w, store, recorder, logger, cfg.Pruning)

	source := newReserveSource(stdin)
	for {
		select {
		case batch, ok := <-source.Updates():
			if !ok {
				return
			}
			result, err := w.Update(batch)
			if err != nil {
				rootLogger.Warn("update rejected", "error", err)
				continue
			}
			logProfitableQuotes(rootLogger, result)
		case err := <-source.Err():
			rootLogger.Error("fatal reserve source error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", "addr", addr, "error", err)
	}
}

func logProfitableQuotes(logger *slog.Logger, result *world.Update) {
	if result.Partial {
		logger.Warn("quoting budget exhausted, continuing next update", "quotes", len(result.Quotes))
	}
	for pool, err := range result.FailedPools {
		logger.Warn("pool update skipped", "pool", pool, "error", err)
	}
	for _, q := range result.Quotes {
		logger.Info("profitable cycle",
			"cycle", q.CycleID.String(),
			"amount_in", q.AmountIn.String(),
			"amount_out", q.AmountOut.String(),
			"profit", q.Profit.String(),
			"margin_bps", q.ProfitMarginBps,
			"legs", len(q.SwapQuotes))
	}
}

// runMaintenance runs enumeration and pruning on a slow, fixed interval,
// off the per-block hot path entirely (SPEC_FULL.md §4.6/§5). Each tick
// holds store.Lock() across both the mutations and the re-Bind that
// follows them, so a concurrent w.Update (which holds store.RLock() for
// its whole call) can never observe a half-mutated store or a stale
// inverted index.
func runMaintenance(ctx context.Context, w *world.World, store *cyclestore.Store, recorder *metrics.Recorder, logger engine.Logger, cfg config.PruningConfig) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			store.Lock()
			p := pruner.New(w.Market(), store, recorder, logger, cfg.MaxCycleLength, cfg.MinPoolReserveRef)

			if _, err := p.PruneIlliquidPools(ctx); err != nil {
				logger.Warn("pool pruning pass failed", "error", err)
			}
			if _, err := p.EnumerateCycles(ctx); err != nil {
				logger.Warn("cycle enumeration pass failed", "error", err)
			}
			if err := world.BindStore(w.Market(), store); err != nil {
				logger.Warn("store re-bind after maintenance pass failed", "error", err)
			}
			store.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
