package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/orchestrator/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryStore struct {
	rows []domain.SettlementRecord
}

func (s *memoryStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.SettlementRecord, error) {
	var out []domain.SettlementRecord
	for _, r := range s.rows {
		if r.SettledAt.Before(cutoff) {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.SettlementRecord
	var deleted int64
	for _, r := range s.rows {
		if r.SettledAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return deleted, nil
}

type memorySink struct {
	objects map[string][]byte
	err     error
}

func (s *memorySink) Put(_ context.Context, path string, data []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[path] = data
	return nil
}

func row(id string, settled time.Time) domain.SettlementRecord {
	return domain.SettlementRecord{
		ID:            id,
		OpportunityID: "opp-" + id,
		Strategy:      domain.StrategyArbitrage,
		Success:       true,
		Profit:        10,
		SettledAt:     settled,
	}
}

func TestPassArchivesOldRows(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryStore{rows: []domain.SettlementRecord{
		row("old-1", now.Add(-10*24*time.Hour)),
		row("old-2", now.Add(-8*24*time.Hour)),
		row("fresh", now.Add(-time.Hour)),
	}}
	sink := &memorySink{}

	a := New(Config{Interval: time.Hour, Retention: 7 * 24 * time.Hour}, store, sink, testLogger())
	require.NoError(t, a.Pass(context.Background(), now))

	require.Len(t, sink.objects, 1)
	for path, data := range sink.objects {
		assert.Contains(t, path, "settlements/2026/09/01/")

		var uploaded []domain.SettlementRecord
		require.NoError(t, json.Unmarshal(data, &uploaded))
		assert.Len(t, uploaded, 2)
	}

	// Only the fresh row remains in the store.
	require.Len(t, store.rows, 1)
	assert.Equal(t, "fresh", store.rows[0].ID)
}

func TestPassNoopWhenNothingOld(t *testing.T) {
	now := time.Now().UTC()
	store := &memoryStore{rows: []domain.SettlementRecord{row("fresh", now)}}
	sink := &memorySink{}

	a := New(Config{Interval: time.Hour, Retention: 7 * 24 * time.Hour}, store, sink, testLogger())
	require.NoError(t, a.Pass(context.Background(), now))

	assert.Empty(t, sink.objects)
	assert.Len(t, store.rows, 1)
}

// Rows are deleted only after a successful upload, so a failed pass retries
// the same rows next time.
func TestPassKeepsRowsOnUploadFailure(t *testing.T) {
	now := time.Now().UTC()
	store := &memoryStore{rows: []domain.SettlementRecord{
		row("old", now.Add(-10*24*time.Hour)),
	}}
	sink := &memorySink{err: errors.New("bucket unavailable")}

	a := New(Config{Interval: time.Hour, Retention: 7 * 24 * time.Hour}, store, sink, testLogger())
	require.Error(t, a.Pass(context.Background(), now))

	assert.Len(t, store.rows, 1)
}
