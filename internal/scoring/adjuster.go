package scoring

import (
	"context"
	"log/slog"
	"time"
)

// minSamples is the settled-opportunity count a strategy needs before its
// performance influences the bonus weight.
const minSamples = 10

// Adjuster periodically retunes the scorer's strategy-bonus weight from
// realized performance. The bonus is a single global scalar: one strategy
// performing well nudges it up 10% (capped), one performing badly nudges it
// down 10% (floored). Intentionally coarse; the feedback signal is
// per-strategy but the weight is shared.
type Adjuster struct {
	scorer   *Scorer
	stats    StatsSource
	interval time.Duration
	logger   *slog.Logger
}

// NewAdjuster creates an Adjuster over the given scorer and stats source.
func NewAdjuster(scorer *Scorer, stats StatsSource, interval time.Duration, logger *slog.Logger) *Adjuster {
	return &Adjuster{
		scorer:   scorer,
		stats:    stats,
		interval: interval,
		logger:   logger.With(slog.String("component", "weight_adjuster")),
	}
}

// Run ticks on a fixed cadence, independent of the admission loop, until the
// context is cancelled.
func (a *Adjuster) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick recomputes the strategy-bonus weight from every strategy with enough
// history. performance = winRate * profitFactor; above 1.5 the bonus grows
// 10%, below 0.5 it shrinks 10%, in between it is left alone.
func (a *Adjuster) Tick() {
	for _, m := range a.stats.All() {
		if m.TotalOpportunities < minSamples {
			continue
		}

		performance := m.WinRate() * m.ProfitFactor()
		bonus := a.scorer.Weights().StrategyBonus

		switch {
		case performance > 1.5:
			a.scorer.setStrategyBonus(bonus * 1.1)
		case performance < 0.5:
			a.scorer.setStrategyBonus(bonus * 0.9)
		default:
			continue
		}

		a.logger.Info("strategy bonus adjusted",
			slog.String("strategy", string(m.Strategy)),
			slog.Float64("performance", performance),
			slog.Float64("bonus", a.scorer.Weights().StrategyBonus),
		)
	}
}
