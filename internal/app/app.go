// Package app provides top-level lifecycle management for the orchestrator
// daemon. It wires the infrastructure (Redis, PostgreSQL, object storage,
// notifications), builds the domain components on top, and runs every
// long-lived loop under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantloop/orchestrator/internal/archive"
	"github.com/quantloop/orchestrator/internal/config"
	"github.com/quantloop/orchestrator/internal/dispatch"
	"github.com/quantloop/orchestrator/internal/domain"
	"github.com/quantloop/orchestrator/internal/ledger"
	"github.com/quantloop/orchestrator/internal/orchestrator"
	"github.com/quantloop/orchestrator/internal/risk"
	"github.com/quantloop/orchestrator/internal/scoring"
	"github.com/quantloop/orchestrator/internal/tracker"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, builds the domain components, starts every loop,
// and blocks until the context is cancelled or a loop fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting orchestrator",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Float64("total_capital", a.cfg.Portfolio.TotalCapital),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Surface reservations a crashed run left behind in the mirror. The
	// restored ledger starts clean; these entries age out via their TTLs.
	if orphans, err := deps.ReservationStore.List(ctx); err != nil {
		a.logger.Warn("reservation mirror scan failed", slog.String("error", err.Error()))
	} else if len(orphans) > 0 {
		a.logger.Warn("found orphaned reservations from previous run",
			slog.Int("count", len(orphans)),
		)
	}

	// --- Capital ledger ---
	book, err := ledger.New(ctx, ledger.Config{
		TotalCapital:     a.cfg.Portfolio.TotalCapital,
		FlashLoanLimit:   a.cfg.Portfolio.FlashLoanLimit,
		MaxPositions:     a.cfg.Orchestrator.MaxPositions,
		MaxLeverageRatio: a.cfg.Orchestrator.MaxLeverageRatio,
		ReservationTTL:   a.cfg.Orchestrator.ReservationTTL(),
	}, deps.ReservationStore, deps.LedgerStore, a.logger)
	if err != nil {
		return fmt.Errorf("app: ledger: %w", err)
	}

	// --- Performance tracking and scoring ---
	perf, err := tracker.New(ctx, deps.MetricsStore, a.logger)
	if err != nil {
		return fmt.Errorf("app: tracker: %w", err)
	}

	w := a.cfg.Orchestrator.ScoringWeights
	scorer := scoring.NewScorer(domain.ScoringWeights{
		Profit:            w.Profit,
		Risk:              w.Risk,
		CapitalEfficiency: w.CapitalEfficiency,
		StrategyBonus:     w.StrategyBonus,
	}, perf)

	// --- Risk gate ---
	var delegate domain.RiskDelegate
	if a.cfg.Risk.DelegateURL != "" {
		delegate = risk.NewHTTPDelegate(a.cfg.Risk.DelegateURL, a.cfg.Risk.DelegateTimeout())
		a.logger.Info("external risk delegate enabled",
			slog.String("url", a.cfg.Risk.DelegateURL),
		)
	}
	gate := risk.NewGate(risk.Policy{
		PortfolioHeatLimit: a.cfg.Orchestrator.PortfolioHeatLimit,
		MaxLeverageRatio:   a.cfg.Orchestrator.MaxLeverageRatio,
	}, delegate, a.logger)

	// --- Dispatch and settlement ---
	dispatcher := dispatch.NewDispatcher(
		deps.SignalBus,
		deps.RateLimiter,
		a.cfg.Orchestrator.DispatchRatePerSec,
		a.logger,
	)
	listener := dispatch.NewSettlementListener(
		deps.SignalBus,
		book,
		perf,
		deps.SettlementStore,
		a.logger,
	)

	// --- Sweeper ---
	sweeper := ledger.NewSweeper(
		book,
		deps.LockManager,
		listener,
		deps.Notifier,
		a.cfg.Orchestrator.SweepInterval(),
		a.logger,
	)

	// --- Orchestrator loop ---
	orch := orchestrator.New(
		deps.Queue,
		gate,
		book,
		dispatcher,
		scorer,
		deps.Notifier,
		orchestrator.Config{
			Interval:       a.cfg.Orchestrator.DecisionInterval(),
			MaxConcurrent:  a.cfg.Orchestrator.MaxConcurrentOpportunities,
			DailyLossLimit: a.cfg.Orchestrator.DailyLossLimit,
		},
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return book.RunDailyReset(gctx) })

	if a.cfg.Orchestrator.AdaptiveLearningEnabled {
		adjuster := scoring.NewAdjuster(scorer, perf, a.cfg.Orchestrator.AdjustInterval(), a.logger)
		g.Go(func() error { return adjuster.Run(gctx) })
	}

	if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver := archive.New(archive.Config{
			Interval:  time.Duration(a.cfg.Archive.IntervalMinutes) * time.Minute,
			Retention: time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour,
		}, deps.SettlementStore, deps.BlobWriter, a.logger)
		g.Go(func() error { return archiver.Run(gctx) })
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down orchestrator")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
