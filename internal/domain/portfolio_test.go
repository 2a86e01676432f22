package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioHeat(t *testing.T) {
	p := PortfolioState{TotalCapital: 100_000, AllocatedCapital: 40_000}
	assert.InDelta(t, 0.4, p.Heat(), 1e-9)

	assert.Zero(t, PortfolioState{}.Heat())
}

func TestPortfolioLeverageRatio(t *testing.T) {
	p := PortfolioState{
		TotalCapital:     100_000,
		AllocatedCapital: 50_000,
		FlashLoanUsed:    150_000,
	}
	assert.InDelta(t, 2.0, p.LeverageRatio(), 1e-9)

	assert.Zero(t, PortfolioState{FlashLoanUsed: 10}.LeverageRatio())
}

// The mirror schema carries the TTL in seconds, the unit external readers of
// capital_reservation:{id} keys expect.
func TestReservationJSONCarriesTTLInSeconds(t *testing.T) {
	r := CapitalReservation{
		OpportunityID:    "res-1",
		Strategy:         StrategyFlashLoan,
		Token:            "WETH",
		AllocatedCapital: 10_000,
		FlashLoanAmount:  50_000,
		CreatedAt:        time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		TTL:              5 * time.Minute,
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(300), raw["ttl_seconds"])
	assert.NotContains(t, raw, "ttl")

	var back CapitalReservation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestStrategyMetricsRatios(t *testing.T) {
	m := StrategyMetrics{
		TotalOpportunities:      10,
		SuccessfulOpportunities: 7,
		TotalProfit:             300,
		TotalLoss:               150,
	}
	assert.InDelta(t, 0.7, m.WinRate(), 1e-9)
	assert.InDelta(t, 2.0, m.ProfitFactor(), 1e-9)

	assert.Zero(t, StrategyMetrics{}.WinRate())
	assert.Equal(t, 42.0, StrategyMetrics{TotalProfit: 42}.ProfitFactor())
}
