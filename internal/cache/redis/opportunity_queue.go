package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantloop/orchestrator/internal/domain"
)

// stagedKey is the sorted set analyzers push scored opportunity payloads
// into. Member = JSON payload, score = the analyzer's composite score.
const stagedKey = "opportunities:staged"

// OpportunityQueue implements domain.OpportunityQueue over the shared staging
// sorted set. Popping removes the entry, so each opportunity is consumed at
// most once across all replicas.
type OpportunityQueue struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewOpportunityQueue creates an OpportunityQueue backed by the given Client.
func NewOpportunityQueue(c *Client, logger *slog.Logger) *OpportunityQueue {
	return &OpportunityQueue{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "opportunity_queue")),
	}
}

// FetchNext pops the highest-scored pending opportunity. Expired and
// malformed entries are discarded and the next entry is tried, bounded by one
// full drain pass over the queue's size at call time so a fully stale queue
// cannot loop forever. Returns domain.ErrQueueEmpty when nothing admissible
// remains.
func (q *OpportunityQueue) FetchNext(ctx context.Context) (domain.Opportunity, error) {
	size, err := q.rdb.ZCard(ctx, stagedKey).Result()
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("redis: queue size: %w", err)
	}

	now := time.Now().UTC()
	for i := int64(0); i <= size; i++ {
		entries, err := q.rdb.ZPopMax(ctx, stagedKey, 1).Result()
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("redis: pop opportunity: %w", err)
		}
		if len(entries) == 0 {
			return domain.Opportunity{}, domain.ErrQueueEmpty
		}

		payload, ok := entries[0].Member.(string)
		if !ok {
			q.logger.Warn("discarding non-string queue member")
			continue
		}

		opp, err := domain.ParseOpportunity([]byte(payload))
		if err != nil {
			// Malformed payloads are non-fatal: treat like an expired entry.
			q.logger.Warn("discarding malformed opportunity",
				slog.String("error", err.Error()),
			)
			continue
		}

		if opp.Expired(now) {
			q.logger.Debug("discarding expired opportunity",
				slog.String("opportunity_id", opp.ID),
				slog.Time("created_at", opp.CreatedAt),
				slog.Duration("ttl", opp.TTL),
			)
			continue
		}

		return opp, nil
	}

	return domain.Opportunity{}, domain.ErrQueueEmpty
}

// Stage pushes an opportunity onto the staging set with the given score.
// Analyzers normally do this from their own processes; the orchestrator only
// uses Stage in tooling and tests.
func (q *OpportunityQueue) Stage(ctx context.Context, opp domain.Opportunity, score float64) error {
	payload, err := domain.EncodeOpportunity(opp)
	if err != nil {
		return err
	}
	if err := q.rdb.ZAdd(ctx, stagedKey, redis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("redis: stage opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpportunityQueue = (*OpportunityQueue)(nil)
