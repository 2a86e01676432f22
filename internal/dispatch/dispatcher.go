// Package dispatch publishes execution commands to the external execution
// layer and consumes the asynchronous settlement results it sends back.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Channel names shared with the external execution layer.
const (
	CommandChannel = "orchestrator_commands"
	ResultChannel  = "execution_results"

	// commandLogStream keeps a durable trail of everything dispatched.
	commandLogStream = "orchestrator:commands:log"

	rateLimitKey = "dispatch"
)

// Dispatcher serializes execution commands and publishes them fire-and-forget
// on the command channel. It never blocks waiting for the outcome; results
// arrive later on the results channel correlated by opportunity ID.
type Dispatcher struct {
	bus        domain.SignalBus
	limiter    domain.RateLimiter // optional
	ratePerSec int
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. limiter may be nil to disable dispatch
// rate limiting.
func NewDispatcher(bus domain.SignalBus, limiter domain.RateLimiter, ratePerSec int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:        bus,
		limiter:    limiter,
		ratePerSec: ratePerSec,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch publishes the execution command for an admitted opportunity. Any
// failure here is a DispatchFailure: the caller must release the reservation
// with zero PnL to avoid leaking capital.
func (d *Dispatcher) Dispatch(ctx context.Context, opp domain.Opportunity, res domain.CapitalReservation) error {
	if d.limiter != nil && d.ratePerSec > 0 {
		allowed, err := d.limiter.Allow(ctx, rateLimitKey, d.ratePerSec, time.Second)
		if err != nil {
			return fmt.Errorf("dispatch: rate limiter: %w", err)
		}
		if !allowed {
			return fmt.Errorf("dispatch: rate limit of %d/s reached", d.ratePerSec)
		}
	}

	cmd := domain.ExecutionCommand{
		OpportunityID:    opp.ID,
		Strategy:         opp.Strategy,
		Token:            opp.Token,
		AllocatedCapital: res.AllocatedCapital,
		FlashLoanAmount:  res.FlashLoanAmount,
		ExecutionPlan:    opp.Metadata,
		Timestamp:        time.Now().UTC(),
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("dispatch: marshal command %s: %w", opp.ID, err)
	}

	if err := d.bus.Publish(ctx, CommandChannel, payload); err != nil {
		return fmt.Errorf("dispatch: publish command %s: %w", opp.ID, err)
	}

	// Durable audit trail; delivery already succeeded, so only log on failure.
	if err := d.bus.StreamAppend(ctx, commandLogStream, payload); err != nil {
		d.logger.Warn("command log append failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}

	d.logger.Info("command dispatched",
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", string(opp.Strategy)),
		slog.String("token", opp.Token),
		slog.Float64("allocated_capital", res.AllocatedCapital),
		slog.Float64("flash_loan", res.FlashLoanAmount),
	)
	return nil
}
