package scoring

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantloop/orchestrator/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func metricsWith(total, wins int64, profit, loss float64) domain.StrategyMetrics {
	return domain.StrategyMetrics{
		Strategy:                domain.StrategyArbitrage,
		TotalOpportunities:      total,
		SuccessfulOpportunities: wins,
		FailedOpportunities:     total - wins,
		TotalProfit:             profit,
		TotalLoss:               loss,
	}
}

func TestTickRaisesBonusOnStrongPerformance(t *testing.T) {
	// winRate 0.9, profitFactor 2.0 -> performance 1.8 > 1.5
	stats := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(20, 18, 400, 200),
	}}
	s := NewScorer(defaultWeights(), stats)
	a := NewAdjuster(s, stats, time.Minute, testLogger())

	a.Tick()

	assert.InDelta(t, 0.10*1.1, s.Weights().StrategyBonus, 1e-9)
}

func TestTickLowersBonusOnWeakPerformance(t *testing.T) {
	// winRate 0.2, profitFactor 0.5 -> performance 0.1 < 0.5
	stats := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(20, 4, 100, 200),
	}}
	s := NewScorer(defaultWeights(), stats)
	a := NewAdjuster(s, stats, time.Minute, testLogger())

	a.Tick()

	assert.InDelta(t, 0.10*0.9, s.Weights().StrategyBonus, 1e-9)
}

func TestTickIgnoresThinHistory(t *testing.T) {
	// 9 samples is below the minimum; weight untouched.
	stats := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(9, 9, 900, 100),
	}}
	s := NewScorer(defaultWeights(), stats)
	a := NewAdjuster(s, stats, time.Minute, testLogger())

	a.Tick()

	assert.Equal(t, 0.10, s.Weights().StrategyBonus)
}

func TestTickLeavesMiddlingPerformanceAlone(t *testing.T) {
	// winRate 0.5, profitFactor 2.0 -> performance 1.0, inside the dead band.
	stats := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(20, 10, 400, 200),
	}}
	s := NewScorer(defaultWeights(), stats)
	a := NewAdjuster(s, stats, time.Minute, testLogger())

	a.Tick()

	assert.Equal(t, 0.10, s.Weights().StrategyBonus)
}

// Repeated strong ticks saturate at the ceiling; repeated weak ticks at the
// floor.
func TestTickRespectsBounds(t *testing.T) {
	strong := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(20, 18, 400, 200),
	}}
	s := NewScorer(defaultWeights(), strong)
	a := NewAdjuster(s, strong, time.Minute, testLogger())

	for i := 0; i < 50; i++ {
		a.Tick()
	}
	assert.Equal(t, MaxStrategyBonus, s.Weights().StrategyBonus)

	weak := &stubStats{metrics: map[domain.StrategyType]domain.StrategyMetrics{
		domain.StrategyArbitrage: metricsWith(20, 4, 100, 200),
	}}
	s2 := NewScorer(defaultWeights(), weak)
	a2 := NewAdjuster(s2, weak, time.Minute, testLogger())

	for i := 0; i < 50; i++ {
		a2.Tick()
	}
	assert.Equal(t, MinStrategyBonus, s2.Weights().StrategyBonus)
}
