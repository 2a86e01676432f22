// Package risk implements the pre-admission risk gate. The gate is a pure
// evaluator over an immutable portfolio snapshot: it mutates nothing and can
// be called without locking.
package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Policy holds the configured risk limits.
type Policy struct {
	PortfolioHeatLimit float64
	MaxLeverageRatio   float64
}

// Gate evaluates opportunities against the policy and an optional external
// risk-manager delegate.
type Gate struct {
	policy   Policy
	delegate domain.RiskDelegate // optional
	logger   *slog.Logger
}

// NewGate creates a Gate with the given policy. delegate may be nil, in which
// case the external check is skipped.
func NewGate(policy Policy, delegate domain.RiskDelegate, logger *slog.Logger) *Gate {
	return &Gate{
		policy:   policy,
		delegate: delegate,
		logger:   logger.With(slog.String("component", "risk_gate")),
	}
}

// Evaluate applies the risk rules in a fixed order, short-circuiting on the
// first failure so the result names exactly the first violated rule:
//
//  1. Capital availability (own capital plus flash-loan headroom)
//  2. Flash-loan daily limit
//  3. Portfolio heat
//  4. Position count
//  5. Leverage ratio
//  6. External risk-manager delegate
func (g *Gate) Evaluate(ctx context.Context, opp domain.Opportunity, portfolio domain.PortfolioState) domain.RiskCheckResult {
	// 1. Capital availability.
	accessible := portfolio.AvailableCapital + (portfolio.FlashLoanLimit - portfolio.FlashLoanUsed)
	if opp.RequiredCapital > accessible {
		return reject(fmt.Sprintf("insufficient capital: required %.2f, accessible %.2f", opp.RequiredCapital, accessible))
	}

	// 2. Flash-loan daily limit.
	if opp.FlashLoanAmount > portfolio.FlashLoanLimit-portfolio.FlashLoanUsed {
		return reject(fmt.Sprintf("flash loan limit: requested %.2f, headroom %.2f",
			opp.FlashLoanAmount, portfolio.FlashLoanLimit-portfolio.FlashLoanUsed))
	}

	// 3. Portfolio heat.
	if portfolio.Heat() > g.policy.PortfolioHeatLimit {
		return reject(fmt.Sprintf("portfolio heat %.2f exceeds limit %.2f", portfolio.Heat(), g.policy.PortfolioHeatLimit))
	}

	// 4. Position count.
	if portfolio.OpenPositions >= portfolio.MaxPositions {
		return reject(fmt.Sprintf("position count %d/%d", portfolio.OpenPositions, portfolio.MaxPositions))
	}

	// 5. Leverage ratio.
	if portfolio.TotalCapital > 0 {
		leverage := (portfolio.AllocatedCapital + opp.FlashLoanAmount) / portfolio.TotalCapital
		if leverage > g.policy.MaxLeverageRatio {
			return reject(fmt.Sprintf("leverage ratio %.2f exceeds limit %.2f", leverage, g.policy.MaxLeverageRatio))
		}
	}

	// 6. External risk-manager delegate.
	if g.delegate != nil {
		res, err := g.delegate.Evaluate(ctx, opp)
		if err != nil {
			// Fail closed: an unreachable risk manager rejects rather than
			// waving trades through unchecked.
			g.logger.Warn("risk delegate unreachable, rejecting",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
			return reject("external risk manager unavailable")
		}
		if !res.Approved {
			return reject("external risk manager: " + res.Reason)
		}
	}

	return domain.RiskCheckResult{Approved: true, Reason: "approved"}
}

func reject(reason string) domain.RiskCheckResult {
	return domain.RiskCheckResult{Approved: false, Reason: reason}
}
