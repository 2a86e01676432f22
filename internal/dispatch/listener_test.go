package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/orchestrator/internal/domain"
)

type fakeReleaser struct {
	mu           sync.Mutex
	reservations map[string]domain.CapitalReservation
	released     map[string]float64
}

func newFakeReleaser() *fakeReleaser {
	return &fakeReleaser{
		reservations: make(map[string]domain.CapitalReservation),
		released:     make(map[string]float64),
	}
}

func (r *fakeReleaser) Release(_ context.Context, id string, pnl float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released[id] = pnl
	delete(r.reservations, id)
	return nil
}

func (r *fakeReleaser) Reservation(id string) (domain.CapitalReservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	return res, ok
}

func (r *fakeReleaser) releasedPnL(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pnl, ok := r.released[id]
	return pnl, ok
}

func (r *fakeReleaser) releasedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

type fakeRecorder struct {
	recorded []domain.ExecutionResult
}

func (r *fakeRecorder) Record(_ context.Context, res domain.ExecutionResult) {
	r.recorded = append(r.recorded, res)
}

type memorySettlementStore struct {
	rows []domain.SettlementRecord
}

func (s *memorySettlementStore) Create(_ context.Context, rec domain.SettlementRecord) error {
	s.rows = append(s.rows, rec)
	return nil
}

func (s *memorySettlementStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.SettlementRecord, error) {
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

func (s *memorySettlementStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
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

func resultPayload(t *testing.T, id string, success bool, profit float64) []byte {
	t.Helper()
	data, err := json.Marshal(domain.ExecutionResult{
		OpportunityID:   id,
		Strategy:        domain.StrategyArbitrage,
		Success:         success,
		Profit:          profit,
		ExecutionTimeMs: 42,
		Timestamp:       time.Now().UTC(),
	})
	require.NoError(t, err)
	return data
}

func newTestListener(bus domain.SignalBus, ledger *fakeReleaser, metrics *fakeRecorder, store domain.SettlementStore) *SettlementListener {
	return NewSettlementListener(bus, ledger, metrics, store, testLogger())
}

func TestHandleSettlesResult(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	ledger.reservations["s-1"] = domain.CapitalReservation{
		OpportunityID:    "s-1",
		Strategy:         domain.StrategyArbitrage,
		Token:            "WETH",
		AllocatedCapital: 8_000,
		FlashLoanAmount:  20_000,
	}
	metrics := &fakeRecorder{}
	store := &memorySettlementStore{}

	l := newTestListener(bus, ledger, metrics, store)
	l.handle(context.Background(), resultPayload(t, "s-1", true, 350))

	pnl, ok := ledger.releasedPnL("s-1")
	require.True(t, ok)
	assert.Equal(t, 350.0, pnl)
	require.Len(t, metrics.recorded, 1)
	assert.True(t, metrics.recorded[0].Success)

	require.Len(t, store.rows, 1)
	rec := store.rows[0]
	assert.Equal(t, "s-1", rec.OpportunityID)
	assert.Equal(t, "WETH", rec.Token)
	assert.Equal(t, 8_000.0, rec.AllocatedCapital)
	assert.Equal(t, 20_000.0, rec.FlashLoanAmount)
	assert.False(t, rec.ForcedRelease)
	assert.NotEmpty(t, rec.ID)

	// Settlement event appended to the event stream.
	assert.Len(t, bus.streamed["orchestrator:events"], 1)
}

func TestHandleDiscardsMalformed(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	metrics := &fakeRecorder{}

	l := newTestListener(bus, ledger, metrics, nil)
	l.handle(context.Background(), []byte("{not json"))
	l.handle(context.Background(), []byte(`{"success": true}`)) // missing opportunity_id

	assert.Empty(t, ledger.released)
	assert.Empty(t, metrics.recorded)
}

func TestHandleDeduplicates(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	ledger.reservations["dup-1"] = domain.CapitalReservation{OpportunityID: "dup-1"}
	metrics := &fakeRecorder{}

	l := newTestListener(bus, ledger, metrics, nil)
	payload := resultPayload(t, "dup-1", true, 100)
	l.handle(context.Background(), payload)
	l.handle(context.Background(), payload)

	assert.Len(t, metrics.recorded, 1, "metrics recorded exactly once per settlement")
	assert.Len(t, ledger.released, 1)
}

// A result with no matching reservation (spurious, or replayed long after the
// sweeper already force-released it) must not touch strategy metrics or the
// audit trail.
func TestHandleIgnoresUncorrelatedResult(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	metrics := &fakeRecorder{}
	store := &memorySettlementStore{}

	l := newTestListener(bus, ledger, metrics, store)
	l.handle(context.Background(), resultPayload(t, "ghost-1", true, 75))

	assert.Empty(t, metrics.recorded, "metrics update requires a matching reservation")
	assert.Empty(t, store.rows)
}

func TestHandleLossResult(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	ledger.reservations["loss-1"] = domain.CapitalReservation{OpportunityID: "loss-1"}
	metrics := &fakeRecorder{}

	l := newTestListener(bus, ledger, metrics, nil)
	l.handle(context.Background(), resultPayload(t, "loss-1", false, -420))

	pnl, ok := ledger.releasedPnL("loss-1")
	require.True(t, ok)
	assert.Equal(t, -420.0, pnl)
	require.Len(t, metrics.recorded, 1)
	assert.False(t, metrics.recorded[0].Success)
}

func TestRecordForcedRelease(t *testing.T) {
	store := &memorySettlementStore{}
	l := newTestListener(newFakeBus(), newFakeReleaser(), &fakeRecorder{}, store)

	err := l.RecordForcedRelease(context.Background(), domain.CapitalReservation{
		OpportunityID:    "swept-1",
		Strategy:         domain.StrategySniperMomentum,
		Token:            "PEPE",
		AllocatedCapital: 2_000,
	})
	require.NoError(t, err)

	require.Len(t, store.rows, 1)
	rec := store.rows[0]
	assert.True(t, rec.ForcedRelease)
	assert.False(t, rec.Success)
	assert.Equal(t, 0.0, rec.Profit)
	assert.Equal(t, 2_000.0, rec.AllocatedCapital)
}

func TestRunConsumesUntilCancel(t *testing.T) {
	bus := newFakeBus()
	ledger := newFakeReleaser()
	metrics := &fakeRecorder{}

	l := newTestListener(bus, ledger, metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	bus.subscribed <- resultPayload(t, "run-1", true, 10)

	require.Eventually(t, func() bool {
		return ledger.releasedCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
