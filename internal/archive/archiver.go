// Package archive moves aged settlement rows out of PostgreSQL into cold
// object storage as JSON batches.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// batchLimit caps how many settlement rows one archive pass uploads.
const batchLimit = 5000

// Config controls the archiver's cadence and retention window.
type Config struct {
	// Interval between archive passes.
	Interval time.Duration

	// Retention is how long settlements stay in PostgreSQL before being
	// shipped to object storage.
	Retention time.Duration
}

// SettlementSource is the slice of the settlement store the archiver uses.
type SettlementSource interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SettlementRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlobSink uploads one archive object.
type BlobSink interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Archiver periodically drains old settlements into object storage. Rows are
// deleted only after the upload succeeds, so a failed pass retries the same
// rows next time.
type Archiver struct {
	cfg    Config
	store  SettlementSource
	sink   BlobSink
	logger *slog.Logger
}

// New creates an Archiver.
func New(cfg Config, store SettlementSource, sink BlobSink, logger *slog.Logger) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Archiver{
		cfg:    cfg,
		store:  store,
		sink:   sink,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run executes archive passes on a ticker until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Pass(ctx, time.Now().UTC()); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Pass archives settlements older than the retention window as of now.
func (a *Archiver) Pass(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.cfg.Retention)

	rows, err := a.store.ListBefore(ctx, cutoff, batchLimit)
	if err != nil {
		return fmt.Errorf("archive: list settlements: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("archive: encode batch: %w", err)
	}

	path := fmt.Sprintf("settlements/%s/%d.json", now.Format("2006/01/02"), now.UnixNano())
	if err := a.sink.Put(ctx, path, data, "application/json"); err != nil {
		return fmt.Errorf("archive: upload batch: %w", err)
	}

	// Delete only up to the last uploaded row. A full batch means more rows
	// may remain under the cutoff; they go out on the next pass.
	deleteCutoff := cutoff
	if len(rows) == batchLimit {
		deleteCutoff = rows[len(rows)-1].SettledAt.Add(time.Nanosecond)
	}

	deleted, err := a.store.DeleteBefore(ctx, deleteCutoff)
	if err != nil {
		return fmt.Errorf("archive: delete archived rows: %w", err)
	}

	a.logger.Info("archived settlements",
		slog.Int("uploaded", len(rows)),
		slog.Int64("deleted", deleted),
		slog.String("path", path),
	)
	return nil
}
