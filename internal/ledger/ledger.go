// Package ledger owns the authoritative portfolio state and performs atomic
// capital reservation and release. All mutation goes through Reserve and
// Release under a single mutex; every other component reads value snapshots.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// Config holds the initial portfolio parameters and reservation policy.
type Config struct {
	TotalCapital     float64
	FlashLoanLimit   float64
	MaxPositions     int
	MaxLeverageRatio float64
	ReservationTTL   time.Duration
}

// Ledger tracks capital, flash-loan usage, and open positions, and guarantees
// that every reservation is released exactly once.
type Ledger struct {
	mu           sync.Mutex
	state        domain.PortfolioState
	reservations map[string]domain.CapitalReservation

	maxLeverage    float64
	reservationTTL time.Duration

	mirror  domain.ReservationStore // optional, best-effort
	persist domain.LedgerStore      // optional, best-effort
	logger  *slog.Logger
}

// New creates a Ledger seeded from cfg. When a LedgerStore is supplied and
// holds a previously persisted snapshot, capital and daily PnL are restored
// from it instead of the config seed.
func New(ctx context.Context, cfg Config, mirror domain.ReservationStore, persist domain.LedgerStore, logger *slog.Logger) (*Ledger, error) {
	if cfg.TotalCapital <= 0 {
		return nil, fmt.Errorf("ledger: total capital must be positive, got %.2f", cfg.TotalCapital)
	}
	if cfg.ReservationTTL <= 0 {
		return nil, fmt.Errorf("ledger: reservation ttl must be positive")
	}

	l := &Ledger{
		state: domain.PortfolioState{
			TotalCapital:     cfg.TotalCapital,
			AvailableCapital: cfg.TotalCapital,
			FlashLoanLimit:   cfg.FlashLoanLimit,
			MaxPositions:     cfg.MaxPositions,
			LastUpdate:       time.Now().UTC(),
		},
		reservations:   make(map[string]domain.CapitalReservation),
		maxLeverage:    cfg.MaxLeverageRatio,
		reservationTTL: cfg.ReservationTTL,
		mirror:         mirror,
		persist:        persist,
		logger:         logger.With(slog.String("component", "ledger")),
	}

	if persist != nil {
		saved, err := persist.Load(ctx)
		switch {
		case err == nil:
			// A restored snapshot has no in-flight reservations; allocated
			// capital from a crashed run is returned to the available pool and
			// the sweeper's mirror listing surfaces what was orphaned.
			l.state.TotalCapital = saved.TotalCapital
			l.state.AvailableCapital = saved.TotalCapital
			l.state.DailyPnL = saved.DailyPnL
			l.logger.Info("restored portfolio snapshot",
				slog.Float64("total_capital", saved.TotalCapital),
				slog.Float64("daily_pnl", saved.DailyPnL),
			)
		case errors.Is(err, domain.ErrNotFound):
			l.logger.Info("no persisted portfolio snapshot, seeding from config",
				slog.Float64("total_capital", cfg.TotalCapital),
			)
		default:
			return nil, fmt.Errorf("ledger: load portfolio snapshot: %w", err)
		}
	}

	return l, nil
}

// Reserve atomically holds the capital an opportunity needs. It is
// all-or-nothing: every bound is checked before any field is mutated, so a
// rejected reservation leaves the ledger untouched.
func (l *Ledger) Reserve(ctx context.Context, opp domain.Opportunity) (domain.CapitalReservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.reservations[opp.ID]; exists {
		return domain.CapitalReservation{}, fmt.Errorf("ledger: reserve %s: reservation already exists", opp.ID)
	}
	if opp.RequiredCapital > l.state.AvailableCapital {
		return domain.CapitalReservation{}, fmt.Errorf("ledger: reserve %s: need %.2f, available %.2f: %w",
			opp.ID, opp.RequiredCapital, l.state.AvailableCapital, domain.ErrInsufficientCapital)
	}
	if opp.FlashLoanAmount > l.state.FlashLoanLimit-l.state.FlashLoanUsed {
		return domain.CapitalReservation{}, fmt.Errorf("ledger: reserve %s: flash loan %.2f exceeds headroom %.2f: %w",
			opp.ID, opp.FlashLoanAmount, l.state.FlashLoanLimit-l.state.FlashLoanUsed, domain.ErrFlashLoanLimit)
	}
	if l.state.OpenPositions >= l.state.MaxPositions {
		return domain.CapitalReservation{}, fmt.Errorf("ledger: reserve %s: %d/%d positions open: %w",
			opp.ID, l.state.OpenPositions, l.state.MaxPositions, domain.ErrMaxPositions)
	}
	if l.maxLeverage > 0 {
		leverage := (l.state.AllocatedCapital + opp.RequiredCapital + l.state.FlashLoanUsed + opp.FlashLoanAmount) / l.state.TotalCapital
		if leverage > l.maxLeverage {
			return domain.CapitalReservation{}, fmt.Errorf("ledger: reserve %s: leverage %.2f would exceed %.2f: %w",
				opp.ID, leverage, l.maxLeverage, domain.ErrLeverageExceeded)
		}
	}

	now := time.Now().UTC()
	res := domain.CapitalReservation{
		OpportunityID:    opp.ID,
		Strategy:         opp.Strategy,
		Token:            opp.Token,
		AllocatedCapital: opp.RequiredCapital,
		FlashLoanAmount:  opp.FlashLoanAmount,
		CreatedAt:        now,
		TTL:              l.reservationTTL,
		Metadata:         opp.Metadata,
	}

	l.state.AvailableCapital -= opp.RequiredCapital
	l.state.AllocatedCapital += opp.RequiredCapital
	l.state.FlashLoanUsed += opp.FlashLoanAmount
	l.state.OpenPositions++
	l.state.LastUpdate = now
	l.reservations[opp.ID] = res

	if l.mirror != nil {
		if err := l.mirror.Put(ctx, res); err != nil {
			l.logger.Warn("reservation mirror write failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	l.logger.Debug("capital reserved",
		slog.String("opportunity_id", opp.ID),
		slog.Float64("allocated", opp.RequiredCapital),
		slog.Float64("flash_loan", opp.FlashLoanAmount),
		slog.Float64("available", l.state.AvailableCapital),
	)

	return res, nil
}

// Release returns reserved capital to the pool, applying realized PnL to both
// available and total capital. Releasing an unknown or already-released
// reservation is a logged no-op, which makes the settlement and sweeper paths
// safe to race against each other.
func (l *Ledger) Release(ctx context.Context, opportunityID string, realizedPnL float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.reservations[opportunityID]
	if !ok {
		l.logger.Warn("release of unknown reservation, ignoring",
			slog.String("opportunity_id", opportunityID),
			slog.Float64("pnl", realizedPnL),
		)
		return nil
	}
	delete(l.reservations, opportunityID)

	now := time.Now().UTC()
	l.state.AvailableCapital += res.AllocatedCapital + realizedPnL
	l.state.AllocatedCapital -= res.AllocatedCapital
	l.state.FlashLoanUsed -= res.FlashLoanAmount
	l.state.OpenPositions--
	l.state.TotalCapital += realizedPnL
	l.state.DailyPnL += realizedPnL
	l.state.LastUpdate = now

	if l.mirror != nil {
		if err := l.mirror.Delete(ctx, opportunityID); err != nil {
			l.logger.Warn("reservation mirror delete failed",
				slog.String("opportunity_id", opportunityID),
				slog.String("error", err.Error()),
			)
		}
	}
	l.persistSnapshot(ctx)

	l.logger.Debug("capital released",
		slog.String("opportunity_id", opportunityID),
		slog.Float64("pnl", realizedPnL),
		slog.Float64("available", l.state.AvailableCapital),
	)

	return nil
}

// Snapshot returns a value copy of the portfolio state for risk evaluation
// and telemetry.
func (l *Ledger) Snapshot() domain.PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ExpiredReservations returns the reservations whose TTL elapsed without an
// explicit release, for the sweeper to force-release.
func (l *Ledger) ExpiredReservations(now time.Time) []domain.CapitalReservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []domain.CapitalReservation
	for _, res := range l.reservations {
		if res.Expired(now) {
			expired = append(expired, res)
		}
	}
	return expired
}

// Reservation looks up an in-flight reservation by opportunity ID.
func (l *Ledger) Reservation(opportunityID string) (domain.CapitalReservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[opportunityID]
	return res, ok
}

// ResetDaily zeroes the daily PnL accumulator. Called by the daily reset task
// at the UTC day boundary; re-arms the daily loss circuit breaker.
func (l *Ledger) ResetDaily(ctx context.Context) {
	l.mu.Lock()
	prev := l.state.DailyPnL
	l.state.DailyPnL = 0
	l.state.LastUpdate = time.Now().UTC()
	l.persistSnapshot(ctx)
	l.mu.Unlock()

	l.logger.Info("daily pnl reset", slog.Float64("previous", prev))
}

// persistSnapshot mirrors the current state to the ledger store. Best-effort:
// the in-process state stays authoritative and a failed write only logs.
// Callers must hold l.mu.
func (l *Ledger) persistSnapshot(ctx context.Context) {
	if l.persist == nil {
		return
	}
	if err := l.persist.Save(ctx, l.state); err != nil {
		l.logger.Warn("portfolio snapshot persist failed", slog.String("error", err.Error()))
	}
}

// RunDailyReset resets the daily PnL accumulator whenever the UTC day rolls
// over. It checks once a minute and returns when the context is cancelled.
func (l *Ledger) RunDailyReset(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	day := time.Now().UTC().Day()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d := time.Now().UTC().Day(); d != day {
				day = d
				l.ResetDaily(ctx)
			}
		}
	}
}
