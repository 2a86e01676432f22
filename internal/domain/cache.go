package domain

import (
	"context"
	"time"
)

// OpportunityQueue is the priority-ordered view over staged opportunities.
// FetchNext pops the highest-scored pending entry, discarding expired and
// malformed entries along the way, and returns ErrQueueEmpty when nothing
// admissible remains.
type OpportunityQueue interface {
	FetchNext(ctx context.Context) (Opportunity, error)
}

// ReservationStore mirrors in-flight capital reservations into a shared
// key-value store with a per-key TTL. The in-process ledger remains
// authoritative; the mirror gives operators visibility and lets replicas
// detect reservations orphaned by a crash.
type ReservationStore interface {
	Put(ctx context.Context, r CapitalReservation) error
	Delete(ctx context.Context, opportunityID string) error
	List(ctx context.Context) ([]CapitalReservation, error)
}

// SignalBus provides pub/sub delivery for the command and results channels
// plus durable stream appends for the audit trail.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter provides distributed rate limiting for command dispatch.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking so periodic tasks (the reservation
// sweeper) run on exactly one replica at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RiskDelegate is the external risk-manager hook invoked as the final risk
// gate rule. It may reject for correlation or concentration reasons not
// modeled locally.
type RiskDelegate interface {
	Evaluate(ctx context.Context, opp Opportunity) (RiskCheckResult, error)
}

// RiskCheckResult is the transient outcome of a risk evaluation. Reason names
// the first violated rule when Approved is false.
type RiskCheckResult struct {
	Approved bool
	Reason   string
}
