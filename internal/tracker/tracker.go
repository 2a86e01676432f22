// Package tracker maintains per-strategy rolling performance statistics fed
// by settled execution results.
package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Tracker accumulates StrategyMetrics in memory and mirrors them to an
// optional MetricsStore so learning survives restarts. Safe for concurrent
// use: the settlement listener writes while the scorer and adjuster read.
type Tracker struct {
	mu    sync.RWMutex
	stats map[domain.StrategyType]*domain.StrategyMetrics

	store  domain.MetricsStore // optional, best-effort
	logger *slog.Logger
}

// New creates a Tracker. When a MetricsStore is supplied, previously
// persisted metrics are loaded so strategy history carries across restarts.
func New(ctx context.Context, store domain.MetricsStore, logger *slog.Logger) (*Tracker, error) {
	t := &Tracker{
		stats:  make(map[domain.StrategyType]*domain.StrategyMetrics),
		store:  store,
		logger: logger.With(slog.String("component", "tracker")),
	}

	if store != nil {
		saved, err := store.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range saved {
			cp := m
			t.stats[m.Strategy] = &cp
		}
		if len(saved) > 0 {
			t.logger.Info("restored strategy metrics", slog.Int("strategies", len(saved)))
		}
	}

	return t, nil
}

// Record folds one settled result into the strategy's metrics. Each settled
// opportunity must be recorded exactly once; the settlement listener's dedup
// guarantees that upstream.
func (t *Tracker) Record(ctx context.Context, res domain.ExecutionResult) {
	t.mu.Lock()
	m, ok := t.stats[res.Strategy]
	if !ok {
		m = &domain.StrategyMetrics{Strategy: res.Strategy}
		t.stats[res.Strategy] = m
	}

	m.TotalOpportunities++
	if res.Success {
		m.SuccessfulOpportunities++
	} else {
		m.FailedOpportunities++
	}
	if res.Profit >= 0 {
		m.TotalProfit += res.Profit
	} else {
		m.TotalLoss += -res.Profit
	}
	// Incremental mean keeps the average exact without storing every sample.
	m.AvgExecutionTimeMs += (float64(res.ExecutionTimeMs) - m.AvgExecutionTimeMs) / float64(m.TotalOpportunities)

	snapshot := *m
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Upsert(ctx, snapshot); err != nil {
			t.logger.Warn("metrics persist failed",
				slog.String("strategy", string(res.Strategy)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Stats returns a copy of one strategy's metrics.
func (t *Tracker) Stats(strategy domain.StrategyType) (domain.StrategyMetrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.stats[strategy]
	if !ok {
		return domain.StrategyMetrics{}, false
	}
	return *m, true
}

// All returns copies of every strategy's metrics.
func (t *Tracker) All() []domain.StrategyMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.StrategyMetrics, 0, len(t.stats))
	for _, m := range t.stats {
		out = append(out, *m)
	}
	return out
}
