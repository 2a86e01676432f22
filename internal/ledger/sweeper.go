package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// sweepLockKey guards the sweep so only one orchestrator replica
// force-releases at a time.
const sweepLockKey = "reservation_sweep"

// Alerter receives operator-facing notifications for anomalies.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Settler records the audit row for a force-released reservation.
type Settler interface {
	RecordForcedRelease(ctx context.Context, res domain.CapitalReservation) error
}

// Sweeper force-releases reservations whose TTL elapsed without settlement.
// An expired reservation means the corresponding opportunity is presumed lost
// or unresolved, so the principal is restored with zero PnL and the event is
// logged as an anomaly.
type Sweeper struct {
	ledger   *Ledger
	locks    domain.LockManager // optional; nil means single-instance
	settler  Settler            // optional
	alerter  Alerter            // optional
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper over the given ledger.
func NewSweeper(l *Ledger, locks domain.LockManager, settler Settler, alerter Alerter, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		ledger:   l,
		locks:    locks,
		settler:  settler,
		alerter:  alerter,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps on a fixed cadence until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one pass. When a lock manager is configured the pass is
// skipped entirely if another replica holds the sweep lock.
func (s *Sweeper) sweep(ctx context.Context) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, sweepLockKey, s.interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return
			}
			s.logger.Warn("sweep lock acquire failed", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	expired := s.ledger.ExpiredReservations(time.Now().UTC())
	for _, res := range expired {
		s.logger.Warn("force-releasing expired reservation",
			slog.String("opportunity_id", res.OpportunityID),
			slog.String("strategy", string(res.Strategy)),
			slog.Float64("allocated", res.AllocatedCapital),
			slog.Time("created_at", res.CreatedAt),
		)

		if err := s.ledger.Release(ctx, res.OpportunityID, 0); err != nil {
			s.logger.Error("force release failed",
				slog.String("opportunity_id", res.OpportunityID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if s.settler != nil {
			if err := s.settler.RecordForcedRelease(ctx, res); err != nil {
				s.logger.Warn("forced release audit record failed",
					slog.String("opportunity_id", res.OpportunityID),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.alerter != nil {
			_ = s.alerter.Notify(ctx, "forced_release", "Reservation force-released",
				"opportunity "+res.OpportunityID+" never settled; principal restored with zero PnL")
		}
	}
}
