package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantloop/orchestrator/internal/domain"
)

// eventStream carries settlement events for downstream consumers.
const eventStream = "orchestrator:events"

// Releaser returns reserved capital with realized PnL. Implemented by the
// capital ledger.
type Releaser interface {
	Release(ctx context.Context, opportunityID string, realizedPnL float64) error
	Reservation(opportunityID string) (domain.CapitalReservation, bool)
}

// Recorder folds settled results into strategy metrics.
type Recorder interface {
	Record(ctx context.Context, res domain.ExecutionResult)
}

// SettlementListener subscribes to the results channel, correlates each
// result with its capital reservation, updates performance metrics, releases
// capital, and records the settlement for audit.
type SettlementListener struct {
	bus         domain.SignalBus
	ledger      Releaser
	metrics     Recorder
	settlements domain.SettlementStore // optional
	dedup       *dedup
	logger      *slog.Logger
}

// NewSettlementListener creates a listener. settlements may be nil to skip
// durable audit records.
func NewSettlementListener(bus domain.SignalBus, ledger Releaser, metrics Recorder, settlements domain.SettlementStore, logger *slog.Logger) *SettlementListener {
	return &SettlementListener{
		bus:         bus,
		ledger:      ledger,
		metrics:     metrics,
		settlements: settlements,
		dedup:       newDedup(10 * time.Minute),
		logger:      logger.With(slog.String("component", "settlement_listener")),
	}
}

// Run consumes the results channel until the context is cancelled. The
// subscription channel closes on cancellation.
func (l *SettlementListener) Run(ctx context.Context) error {
	results, err := l.bus.Subscribe(ctx, ResultChannel)
	if err != nil {
		return err
	}

	cleanupTicker := time.NewTicker(time.Minute)
	defer cleanupTicker.Stop()

	l.logger.Info("settlement listener started", slog.String("channel", ResultChannel))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanupTicker.C:
			l.dedup.cleanup()
		case payload, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			l.handle(ctx, payload)
		}
	}
}

// handle processes one settlement payload. No single malformed or duplicate
// message may stop the listener.
func (l *SettlementListener) handle(ctx context.Context, payload []byte) {
	res, err := domain.ParseExecutionResult(payload)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			l.logger.Warn("discarding malformed result", slog.String("error", err.Error()))
			return
		}
		l.logger.Error("result parse failed", slog.String("error", err.Error()))
		return
	}

	if l.dedup.isDuplicate(res.OpportunityID) {
		l.logger.Debug("duplicate settlement, skipping",
			slog.String("opportunity_id", res.OpportunityID),
		)
		return
	}

	// Capture the reservation before release so the audit row carries the
	// capital amounts. A result with no matching reservation is spurious or
	// arrived after the sweeper; it must not inflate strategy metrics, which
	// count each settled opportunity exactly once.
	reservation, had := l.ledger.Reservation(res.OpportunityID)
	if had {
		l.metrics.Record(ctx, res)
	} else {
		l.logger.Warn("result without matching reservation, skipping metrics",
			slog.String("opportunity_id", res.OpportunityID),
		)
	}

	if err := l.ledger.Release(ctx, res.OpportunityID, res.Profit); err != nil {
		l.logger.Error("settlement release failed",
			slog.String("opportunity_id", res.OpportunityID),
			slog.String("error", err.Error()),
		)
	}

	if l.settlements != nil && had {
		rec := domain.SettlementRecord{
			ID:               uuid.New().String(),
			OpportunityID:    res.OpportunityID,
			Strategy:         res.Strategy,
			Token:            reservation.Token,
			Success:          res.Success,
			Profit:           res.Profit,
			ExecutionTimeMs:  res.ExecutionTimeMs,
			AllocatedCapital: reservation.AllocatedCapital,
			FlashLoanAmount:  reservation.FlashLoanAmount,
			SettledAt:        time.Now().UTC(),
		}
		if err := l.settlements.Create(ctx, rec); err != nil {
			l.logger.Warn("settlement audit record failed",
				slog.String("opportunity_id", res.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}

	if event, err := json.Marshal(res); err == nil {
		if err := l.bus.StreamAppend(ctx, eventStream, event); err != nil {
			l.logger.Warn("event stream append failed", slog.String("error", err.Error()))
		}
	}

	l.logger.Info("settlement processed",
		slog.String("opportunity_id", res.OpportunityID),
		slog.String("strategy", string(res.Strategy)),
		slog.Bool("success", res.Success),
		slog.Float64("profit", res.Profit),
		slog.Int64("execution_time_ms", res.ExecutionTimeMs),
	)
}

// RecordForcedRelease writes the audit row for a reservation the sweeper
// force-released. Satisfies the sweeper's Settler interface.
func (l *SettlementListener) RecordForcedRelease(ctx context.Context, res domain.CapitalReservation) error {
	if l.settlements == nil {
		return nil
	}
	return l.settlements.Create(ctx, domain.SettlementRecord{
		ID:               uuid.New().String(),
		OpportunityID:    res.OpportunityID,
		Strategy:         res.Strategy,
		Token:            res.Token,
		Success:          false,
		Profit:           0,
		AllocatedCapital: res.AllocatedCapital,
		FlashLoanAmount:  res.FlashLoanAmount,
		ForcedRelease:    true,
		SettledAt:        time.Now().UTC(),
	})
}
