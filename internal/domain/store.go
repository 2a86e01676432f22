package domain

import (
	"context"
	"time"
)

// LedgerStore durably persists portfolio state snapshots so capital and daily
// PnL survive a restart.
type LedgerStore interface {
	Save(ctx context.Context, state PortfolioState) error
	Load(ctx context.Context) (PortfolioState, error)
}

// MetricsStore durably persists per-strategy performance metrics so the
// adaptive scoring loop does not relearn from scratch after a restart.
type MetricsStore interface {
	Upsert(ctx context.Context, m StrategyMetrics) error
	LoadAll(ctx context.Context) ([]StrategyMetrics, error)
}

// SettlementStore records every settled opportunity for audit and archival.
type SettlementStore interface {
	Create(ctx context.Context, rec SettlementRecord) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]SettlementRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlobWriter uploads archive objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
