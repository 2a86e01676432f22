package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// MetricsStore persists per-strategy performance counters.
type MetricsStore struct {
	client *Client
}

// NewMetricsStore creates a MetricsStore backed by the given client.
func NewMetricsStore(client *Client) *MetricsStore {
	return &MetricsStore{client: client}
}

// Upsert writes the full counter row for one strategy.
func (s *MetricsStore) Upsert(ctx context.Context, m domain.StrategyMetrics) error {
	const query = `
		INSERT INTO strategy_metrics (
			strategy_type, total_opportunities, successful_opportunities,
			failed_opportunities, total_profit, total_loss,
			avg_execution_time_ms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (strategy_type) DO UPDATE SET
			total_opportunities = EXCLUDED.total_opportunities,
			successful_opportunities = EXCLUDED.successful_opportunities,
			failed_opportunities = EXCLUDED.failed_opportunities,
			total_profit = EXCLUDED.total_profit,
			total_loss = EXCLUDED.total_loss,
			avg_execution_time_ms = EXCLUDED.avg_execution_time_ms,
			updated_at = EXCLUDED.updated_at`

	_, err := s.client.Pool().Exec(ctx, query,
		string(m.Strategy),
		m.TotalOpportunities,
		m.SuccessfulOpportunities,
		m.FailedOpportunities,
		m.TotalProfit,
		m.TotalLoss,
		m.AvgExecutionTimeMs,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert metrics %s: %w", m.Strategy, err)
	}
	return nil
}

// LoadAll reads counters for every strategy with recorded history.
func (s *MetricsStore) LoadAll(ctx context.Context) ([]domain.StrategyMetrics, error) {
	const query = `
		SELECT strategy_type, total_opportunities, successful_opportunities,
		       failed_opportunities, total_profit, total_loss,
		       avg_execution_time_ms
		FROM strategy_metrics`

	rows, err := s.client.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyMetrics
	for rows.Next() {
		var (
			m        domain.StrategyMetrics
			strategy string
		)
		if err := rows.Scan(
			&strategy,
			&m.TotalOpportunities,
			&m.SuccessfulOpportunities,
			&m.FailedOpportunities,
			&m.TotalProfit,
			&m.TotalLoss,
			&m.AvgExecutionTimeMs,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan metrics row: %w", err)
		}
		m.Strategy = domain.StrategyType(strategy)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate metrics rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.MetricsStore = (*MetricsStore)(nil)
