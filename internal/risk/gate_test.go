package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/orchestrator/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() Policy {
	return Policy{
		PortfolioHeatLimit: 0.80,
		MaxLeverageRatio:   3.0,
	}
}

func healthyPortfolio() domain.PortfolioState {
	return domain.PortfolioState{
		TotalCapital:     100_000,
		AvailableCapital: 80_000,
		AllocatedCapital: 20_000,
		FlashLoanUsed:    0,
		FlashLoanLimit:   500_000,
		OpenPositions:    2,
		MaxPositions:     10,
	}
}

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:              "opp-1",
		Strategy:        domain.StrategyArbitrage,
		Token:           "WETH",
		RequiredCapital: 10_000,
	}
}

type stubDelegate struct {
	result domain.RiskCheckResult
	err    error
}

func (s stubDelegate) Evaluate(context.Context, domain.Opportunity) (domain.RiskCheckResult, error) {
	return s.result, s.err
}

func TestEvaluateApproves(t *testing.T) {
	g := NewGate(testPolicy(), nil, testLogger())

	res := g.Evaluate(context.Background(), testOpp(), healthyPortfolio())
	assert.True(t, res.Approved)
	assert.Equal(t, "approved", res.Reason)
}

// Flash-loan headroom counts toward accessibility: a request over the
// available balance still passes the gate when borrowing covers it.
func TestEvaluateCountsFlashHeadroom(t *testing.T) {
	g := NewGate(testPolicy(), nil, testLogger())

	opp := testOpp()
	opp.RequiredCapital = 200_000 // over available, under available+headroom

	res := g.Evaluate(context.Background(), opp, healthyPortfolio())
	assert.True(t, res.Approved)
}

func TestEvaluateReportsFirstViolatedRule(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(*domain.Opportunity, *domain.PortfolioState)
		wantReason string
	}{
		{
			name: "capital before flash loan",
			mutate: func(o *domain.Opportunity, p *domain.PortfolioState) {
				// Violates both rule 1 and rule 2; reason must name rule 1.
				o.RequiredCapital = 10_000_000
				o.FlashLoanAmount = 10_000_000
			},
			wantReason: "insufficient capital",
		},
		{
			name: "flash loan before heat",
			mutate: func(o *domain.Opportunity, p *domain.PortfolioState) {
				o.FlashLoanAmount = 600_000
				p.AllocatedCapital = 90_000
				p.AvailableCapital = 10_000
			},
			wantReason: "flash loan limit",
		},
		{
			name: "heat before position count",
			mutate: func(o *domain.Opportunity, p *domain.PortfolioState) {
				p.AllocatedCapital = 90_000
				p.AvailableCapital = 10_000
				p.OpenPositions = p.MaxPositions
			},
			wantReason: "portfolio heat",
		},
		{
			name: "position count before leverage",
			mutate: func(o *domain.Opportunity, p *domain.PortfolioState) {
				p.OpenPositions = p.MaxPositions
				o.FlashLoanAmount = 400_000
			},
			wantReason: "position count",
		},
		{
			name: "leverage",
			mutate: func(o *domain.Opportunity, p *domain.PortfolioState) {
				o.FlashLoanAmount = 400_000
			},
			wantReason: "leverage ratio",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate(testPolicy(), nil, testLogger())
			opp := testOpp()
			portfolio := healthyPortfolio()
			tc.mutate(&opp, &portfolio)

			res := g.Evaluate(context.Background(), opp, portfolio)
			require.False(t, res.Approved)
			assert.Contains(t, res.Reason, tc.wantReason)
		})
	}
}

func TestEvaluateDelegateRejection(t *testing.T) {
	g := NewGate(testPolicy(), stubDelegate{
		result: domain.RiskCheckResult{Approved: false, Reason: "token concentration"},
	}, testLogger())

	res := g.Evaluate(context.Background(), testOpp(), healthyPortfolio())
	require.False(t, res.Approved)
	assert.Contains(t, res.Reason, "token concentration")
}

// An unreachable external risk manager fails closed.
func TestEvaluateDelegateErrorRejects(t *testing.T) {
	g := NewGate(testPolicy(), stubDelegate{err: errors.New("connection refused")}, testLogger())

	res := g.Evaluate(context.Background(), testOpp(), healthyPortfolio())
	require.False(t, res.Approved)
	assert.Equal(t, "external risk manager unavailable", res.Reason)
}
