package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// SettlementStore records settled opportunities for audit and later archival.
type SettlementStore struct {
	client *Client
}

// NewSettlementStore creates a SettlementStore backed by the given client.
func NewSettlementStore(client *Client) *SettlementStore {
	return &SettlementStore{client: client}
}

// Create inserts one settlement row.
func (s *SettlementStore) Create(ctx context.Context, rec domain.SettlementRecord) error {
	const query = `
		INSERT INTO settlements (
			id, opportunity_id, strategy_type, token, success, profit,
			execution_time_ms, allocated_capital, flash_loan_amount,
			forced_release, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.client.Pool().Exec(ctx, query,
		rec.ID,
		rec.OpportunityID,
		string(rec.Strategy),
		rec.Token,
		rec.Success,
		rec.Profit,
		rec.ExecutionTimeMs,
		rec.AllocatedCapital,
		rec.FlashLoanAmount,
		rec.ForcedRelease,
		rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement %s: %w", rec.OpportunityID, err)
	}
	return nil
}

// ListBefore returns up to limit settlements settled strictly before cutoff,
// oldest first. A limit of 0 or less means no limit.
func (s *SettlementStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SettlementRecord, error) {
	query := `
		SELECT id, opportunity_id, strategy_type, token, success, profit,
		       execution_time_ms, allocated_capital, flash_loan_amount,
		       forced_release, settled_at
		FROM settlements
		WHERE settled_at < $1
		ORDER BY settled_at ASC`

	args := []interface{}{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementRecord
	for rows.Next() {
		var (
			rec      domain.SettlementRecord
			strategy string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OpportunityID,
			&strategy,
			&rec.Token,
			&rec.Success,
			&rec.Profit,
			&rec.ExecutionTimeMs,
			&rec.AllocatedCapital,
			&rec.FlashLoanAmount,
			&rec.ForcedRelease,
			&rec.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement row: %w", err)
		}
		rec.Strategy = domain.StrategyType(strategy)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate settlement rows: %w", err)
	}
	return out, nil
}

// DeleteBefore removes settlements settled strictly before cutoff and returns
// how many rows were removed.
func (s *SettlementStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.client.Pool().Exec(ctx,
		"DELETE FROM settlements WHERE settled_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
