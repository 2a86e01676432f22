// Package scoring computes the composite admission score for opportunities
// and adaptively retunes the strategy-bonus weight from realized performance.
package scoring

import (
	"math"
	"sync"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Bounds for the adaptively tuned strategy bonus weight.
const (
	MinStrategyBonus = 0.05
	MaxStrategyBonus = 0.30
)

// StatsSource exposes per-strategy performance metrics. Implemented by the
// performance tracker.
type StatsSource interface {
	Stats(strategy domain.StrategyType) (domain.StrategyMetrics, bool)
	All() []domain.StrategyMetrics
}

// Scorer computes composite scores at admission time. Scores are never stored
// on opportunities because the weight vector drifts as the adjuster learns.
type Scorer struct {
	mu      sync.RWMutex
	weights domain.ScoringWeights
	stats   StatsSource
}

// NewScorer creates a Scorer with the given initial weights.
func NewScorer(weights domain.ScoringWeights, stats StatsSource) *Scorer {
	return &Scorer{weights: weights, stats: stats}
}

// Score computes the composite admission score for an opportunity, clamped to
// [0, 100]. The strategy bonus contributes nothing for strategies without
// history.
func (s *Scorer) Score(opp domain.Opportunity) float64 {
	s.mu.RLock()
	w := s.weights
	s.mu.RUnlock()

	profitScore := opp.ExpectedReturn * w.Profit * 1000
	riskPenalty := opp.RiskScore * w.Risk * 100
	capitalEfficiency := (opp.ExpectedReturn / math.Max(0.001, opp.RequiredCapital)) * w.CapitalEfficiency * 100

	var strategyBonus float64
	if s.stats != nil {
		if m, ok := s.stats.Stats(opp.Strategy); ok && m.TotalOpportunities > 0 {
			strategyBonus = m.WinRate() * m.ProfitFactor() * w.StrategyBonus * 50
		}
	}

	score := profitScore - riskPenalty + capitalEfficiency + strategyBonus
	return math.Min(100, math.Max(0, score))
}

// Weights returns a copy of the current weight vector.
func (s *Scorer) Weights() domain.ScoringWeights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// setStrategyBonus replaces the bonus weight, clamped to its bounds. Only the
// adjuster calls this.
func (s *Scorer) setStrategyBonus(bonus float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights.StrategyBonus = math.Min(MaxStrategyBonus, math.Max(MinStrategyBonus, bonus))
}
