package domain

// StrategyMetrics accumulates realized performance for one strategy type.
// Counters only ever grow; ratios are recomputed from the counters.
type StrategyMetrics struct {
	Strategy                StrategyType
	TotalOpportunities      int64
	SuccessfulOpportunities int64
	FailedOpportunities     int64
	TotalProfit             float64
	TotalLoss               float64
	AvgExecutionTimeMs      float64
}

// WinRate returns the fraction of settled opportunities that succeeded,
// or 0 when there is no history.
func (m StrategyMetrics) WinRate() float64 {
	if m.TotalOpportunities == 0 {
		return 0
	}
	return float64(m.SuccessfulOpportunities) / float64(m.TotalOpportunities)
}

// ProfitFactor returns gross profit over gross loss. With no recorded loss it
// degrades to the gross profit itself so a loss-free strategy still ranks
// above break-even ones.
func (m StrategyMetrics) ProfitFactor() float64 {
	if m.TotalLoss == 0 {
		return m.TotalProfit
	}
	return m.TotalProfit / m.TotalLoss
}

// ScoringWeights is the weight vector applied by the composite scorer.
// StrategyBonus is the only adaptively tuned component; it is a single global
// scalar shared across strategies, matching the single feedback signal the
// weight adjuster consumes.
type ScoringWeights struct {
	Profit            float64
	Risk              float64
	CapitalEfficiency float64
	StrategyBonus     float64
}
