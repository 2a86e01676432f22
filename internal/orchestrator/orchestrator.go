// Package orchestrator implements the admission-control loop that turns
// staged opportunities into risk-checked, capital-reserved execution
// commands. One admission decision is in flight at a time so every risk
// evaluation sees a portfolio snapshot consistent with the ledger; dispatch
// and settlement are asynchronous.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Queue supplies the highest-scored admissible opportunity.
type Queue interface {
	FetchNext(ctx context.Context) (domain.Opportunity, error)
}

// Gate evaluates an opportunity against the current portfolio snapshot.
type Gate interface {
	Evaluate(ctx context.Context, opp domain.Opportunity, portfolio domain.PortfolioState) domain.RiskCheckResult
}

// Ledger reserves and releases capital.
type Ledger interface {
	Reserve(ctx context.Context, opp domain.Opportunity) (domain.CapitalReservation, error)
	Release(ctx context.Context, opportunityID string, realizedPnL float64) error
	Snapshot() domain.PortfolioState
}

// Dispatcher publishes the execution command for an admitted opportunity.
type Dispatcher interface {
	Dispatch(ctx context.Context, opp domain.Opportunity, res domain.CapitalReservation) error
}

// Scorer computes the composite admission score, logged on every dispatch.
type Scorer interface {
	Score(opp domain.Opportunity) float64
}

// Alerter receives operator notifications for circuit-breaker transitions.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the loop's tunables.
type Config struct {
	Interval       time.Duration
	MaxConcurrent  int     // cap on simultaneously open positions admitted by the loop
	DailyLossLimit float64 // positive; 0 disables the circuit breaker
}

// Orchestrator runs the admission cycle: fetch, risk-check, reserve,
// dispatch. No failure on a single opportunity terminates the loop.
type Orchestrator struct {
	queue      Queue
	gate       Gate
	ledger     Ledger
	dispatcher Dispatcher
	scorer     Scorer
	alerter    Alerter // optional
	cfg        Config
	logger     *slog.Logger

	breakerOpen bool
}

// New creates an Orchestrator. All collaborators are injected; the
// orchestrator owns no state beyond the circuit-breaker latch.
func New(queue Queue, gate Gate, ledger Ledger, dispatcher Dispatcher, scorer Scorer, alerter Alerter, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		queue:      queue,
		gate:       gate,
		ledger:     ledger,
		dispatcher: dispatcher,
		scorer:     scorer,
		alerter:    alerter,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Run drives admission cycles on a fixed cadence until the context is
// cancelled. Stop is cooperative: the in-flight cycle finishes, no new
// opportunities are fetched, and already-dispatched commands settle through
// the listener or the sweeper.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		slog.Duration("interval", o.cfg.Interval),
		slog.Int("max_concurrent", o.cfg.MaxConcurrent),
		slog.Float64("daily_loss_limit", o.cfg.DailyLossLimit),
	)
	defer o.logger.Info("orchestrator stopped")

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

// runCycle executes one admission cycle with panic containment: an
// unexpected failure mid-cycle releases any reservation it made and the loop
// moves on to the next tick.
func (o *Orchestrator) runCycle(ctx context.Context) {
	var reserved string

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("admission cycle panicked", slog.Any("panic", r))
			if reserved != "" {
				if err := o.ledger.Release(ctx, reserved, 0); err != nil {
					o.logger.Error("release after panic failed",
						slog.String("opportunity_id", reserved),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()

	snapshot := o.ledger.Snapshot()

	if !o.checkCircuitBreaker(ctx, snapshot) {
		return
	}

	if o.cfg.MaxConcurrent > 0 && snapshot.OpenPositions >= o.cfg.MaxConcurrent {
		o.logger.Debug("at concurrency cap, skipping fetch",
			slog.Int("open_positions", snapshot.OpenPositions),
		)
		return
	}

	// Fetch.
	opp, err := o.queue.FetchNext(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrQueueEmpty) {
			return
		}
		// Transient broker failure: log and try again next cycle.
		o.logger.Warn("fetch failed", slog.String("error", err.Error()))
		return
	}

	// TTL re-check at admission time. The queue discards expired entries on
	// pop, but the opportunity can also age out between fetch and here, and
	// the loop must never dispatch a stale one regardless of queue behavior.
	if opp.Expired(time.Now().UTC()) {
		o.logger.Warn("discarding expired opportunity",
			slog.String("opportunity_id", opp.ID),
			slog.Time("created_at", opp.CreatedAt),
			slog.Duration("ttl", opp.TTL),
		)
		return
	}

	score := o.scorer.Score(opp)
	log := o.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", string(opp.Strategy)),
		slog.String("token", opp.Token),
		slog.Float64("score", score),
	)

	// RiskCheck. A rejected opportunity instance is discarded, never retried.
	if result := o.gate.Evaluate(ctx, opp, snapshot); !result.Approved {
		log.Info("risk rejected", slog.String("reason", result.Reason))
		return
	}

	// Reserve.
	reservation, err := o.ledger.Reserve(ctx, opp)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCapital) ||
			errors.Is(err, domain.ErrFlashLoanLimit) ||
			errors.Is(err, domain.ErrLeverageExceeded) ||
			errors.Is(err, domain.ErrMaxPositions) {
			log.Info("reservation rejected", slog.String("reason", err.Error()))
			return
		}
		log.Error("reserve failed", slog.String("error", err.Error()))
		return
	}
	reserved = opp.ID

	// Dispatch. A publish failure must release the reservation with zero PnL
	// so no capital leaks.
	if err := o.dispatcher.Dispatch(ctx, opp, reservation); err != nil {
		log.Error("dispatch failed, releasing reservation", slog.String("error", err.Error()))
		if relErr := o.ledger.Release(ctx, opp.ID, 0); relErr != nil {
			log.Error("release after dispatch failure failed", slog.String("error", relErr.Error()))
		}
		if o.alerter != nil {
			_ = o.alerter.Notify(ctx, "dispatch_failure", "Dispatch failed",
				fmt.Sprintf("opportunity %s: %v", opp.ID, err))
		}
		return
	}
	reserved = "" // ownership passed to the settlement path

	log.Info("opportunity admitted",
		slog.Float64("allocated_capital", reservation.AllocatedCapital),
		slog.Float64("flash_loan", reservation.FlashLoanAmount),
	)
}

// checkCircuitBreaker halts admission while the daily loss limit is
// breached. The breaker re-arms when daily PnL recovers above the limit
// (normally via the daily reset).
func (o *Orchestrator) checkCircuitBreaker(ctx context.Context, snapshot domain.PortfolioState) bool {
	if o.cfg.DailyLossLimit <= 0 {
		return true
	}

	tripped := snapshot.DailyPnL <= -o.cfg.DailyLossLimit
	switch {
	case tripped && !o.breakerOpen:
		o.breakerOpen = true
		o.logger.Error("daily loss circuit breaker tripped, halting admission",
			slog.Float64("daily_pnl", snapshot.DailyPnL),
			slog.Float64("limit", o.cfg.DailyLossLimit),
		)
		if o.alerter != nil {
			_ = o.alerter.Notify(ctx, "circuit_breaker", "Circuit breaker tripped",
				fmt.Sprintf("daily pnl %.2f breached loss limit %.2f; admission halted", snapshot.DailyPnL, o.cfg.DailyLossLimit))
		}
	case !tripped && o.breakerOpen:
		o.breakerOpen = false
		o.logger.Info("daily loss circuit breaker reset, resuming admission")
	}

	return !o.breakerOpen
}
