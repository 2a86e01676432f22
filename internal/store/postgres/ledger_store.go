package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quantloop/orchestrator/internal/domain"
)

// LedgerStore persists the single-row portfolio snapshot.
type LedgerStore struct {
	client *Client
}

// NewLedgerStore creates a LedgerStore backed by the given client.
func NewLedgerStore(client *Client) *LedgerStore {
	return &LedgerStore{client: client}
}

// Save upserts the snapshot row.
func (s *LedgerStore) Save(ctx context.Context, state domain.PortfolioState) error {
	const query = `
		INSERT INTO portfolio_snapshot (
			id, total_capital, available_capital, allocated_capital,
			flash_loan_used, flash_loan_limit, open_positions, max_positions,
			daily_pnl, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			total_capital = EXCLUDED.total_capital,
			available_capital = EXCLUDED.available_capital,
			allocated_capital = EXCLUDED.allocated_capital,
			flash_loan_used = EXCLUDED.flash_loan_used,
			flash_loan_limit = EXCLUDED.flash_loan_limit,
			open_positions = EXCLUDED.open_positions,
			max_positions = EXCLUDED.max_positions,
			daily_pnl = EXCLUDED.daily_pnl,
			updated_at = EXCLUDED.updated_at`

	_, err := s.client.Pool().Exec(ctx, query,
		state.TotalCapital,
		state.AvailableCapital,
		state.AllocatedCapital,
		state.FlashLoanUsed,
		state.FlashLoanLimit,
		state.OpenPositions,
		state.MaxPositions,
		state.DailyPnL,
		state.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("postgres: save portfolio snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot row. Returns domain.ErrNotFound when no snapshot has
// ever been saved.
func (s *LedgerStore) Load(ctx context.Context) (domain.PortfolioState, error) {
	const query = `
		SELECT total_capital, available_capital, allocated_capital,
		       flash_loan_used, flash_loan_limit, open_positions, max_positions,
		       daily_pnl, updated_at
		FROM portfolio_snapshot WHERE id = 1`

	var state domain.PortfolioState
	err := s.client.Pool().QueryRow(ctx, query).Scan(
		&state.TotalCapital,
		&state.AvailableCapital,
		&state.AllocatedCapital,
		&state.FlashLoanUsed,
		&state.FlashLoanLimit,
		&state.OpenPositions,
		&state.MaxPositions,
		&state.DailyPnL,
		&state.LastUpdate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PortfolioState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PortfolioState{}, fmt.Errorf("postgres: load portfolio snapshot: %w", err)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
