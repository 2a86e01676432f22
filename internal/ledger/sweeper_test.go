package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/orchestrator/internal/domain"
)

type recordingSettler struct {
	records []domain.CapitalReservation
}

func (r *recordingSettler) RecordForcedRelease(_ context.Context, res domain.CapitalReservation) error {
	r.records = append(r.records, res)
	return nil
}

type recordingAlerter struct {
	events []string
}

func (r *recordingAlerter) Notify(_ context.Context, event, _, _ string) error {
	r.events = append(r.events, event)
	return nil
}

type fakeLocks struct {
	held bool
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

func TestSweepForceReleasesExpired(t *testing.T) {
	cfg := testConfig()
	cfg.ReservationTTL = time.Nanosecond
	l := newTestLedger(t, cfg)
	ctx := context.Background()

	_, err := l.Reserve(ctx, opp("expired-1", 10_000, 50_000))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	settler := &recordingSettler{}
	alerter := &recordingAlerter{}
	s := NewSweeper(l, nil, settler, alerter, time.Minute, testLogger())
	s.sweep(ctx)

	state := l.Snapshot()
	assert.Equal(t, 0, state.OpenPositions)
	assert.Equal(t, 100_000.0, state.AvailableCapital, "principal restored with zero pnl")
	assert.Equal(t, 0.0, state.DailyPnL)
	assert.Equal(t, 0.0, state.FlashLoanUsed)

	require.Len(t, settler.records, 1)
	assert.Equal(t, "expired-1", settler.records[0].OpportunityID)
	assert.Equal(t, []string{"forced_release"}, alerter.events)
}

func TestSweepLeavesLiveReservations(t *testing.T) {
	l := newTestLedger(t, testConfig())
	ctx := context.Background()

	_, err := l.Reserve(ctx, opp("live", 10_000, 0))
	require.NoError(t, err)

	s := NewSweeper(l, nil, nil, nil, time.Minute, testLogger())
	s.sweep(ctx)

	assert.Equal(t, 1, l.Snapshot().OpenPositions)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	cfg := testConfig()
	cfg.ReservationTTL = time.Nanosecond
	l := newTestLedger(t, cfg)
	ctx := context.Background()

	_, err := l.Reserve(ctx, opp("blocked", 10_000, 0))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	s := NewSweeper(l, &fakeLocks{held: true}, nil, nil, time.Minute, testLogger())
	s.sweep(ctx)

	// Another replica holds the sweep lock; nothing released here.
	assert.Equal(t, 1, l.Snapshot().OpenPositions)
}
