package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quantloop/orchestrator/internal/domain"
)

// reservationPrefix is the key pattern for mirrored capital reservations.
const reservationPrefix = "capital_reservation:"

// ReservationStore implements domain.ReservationStore using per-key TTLs so
// a crashed orchestrator's reservations age out of the mirror on their own.
type ReservationStore struct {
	rdb *redis.Client
}

// NewReservationStore creates a ReservationStore backed by the given Client.
func NewReservationStore(c *Client) *ReservationStore {
	return &ReservationStore{rdb: c.Underlying()}
}

func reservationKey(opportunityID string) string {
	return reservationPrefix + opportunityID
}

// Put writes a reservation with its own TTL as the key expiry, plus slack so
// the sweeper observes expiry before the mirror entry vanishes.
func (rs *ReservationStore) Put(ctx context.Context, r domain.CapitalReservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal reservation %s: %w", r.OpportunityID, err)
	}

	expiry := r.TTL * 2
	if err := rs.rdb.Set(ctx, reservationKey(r.OpportunityID), data, expiry).Err(); err != nil {
		return fmt.Errorf("redis: put reservation %s: %w", r.OpportunityID, err)
	}
	return nil
}

// Delete removes a reservation from the mirror after release.
func (rs *ReservationStore) Delete(ctx context.Context, opportunityID string) error {
	if err := rs.rdb.Del(ctx, reservationKey(opportunityID)).Err(); err != nil {
		return fmt.Errorf("redis: delete reservation %s: %w", opportunityID, err)
	}
	return nil
}

// List scans the mirror for all outstanding reservations. Used at startup to
// surface reservations orphaned by a crash.
func (rs *ReservationStore) List(ctx context.Context) ([]domain.CapitalReservation, error) {
	var (
		out    []domain.CapitalReservation
		cursor uint64
	)

	for {
		keys, next, err := rs.rdb.Scan(ctx, cursor, reservationPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan reservations: %w", err)
		}

		for _, key := range keys {
			data, err := rs.rdb.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue // expired between scan and get
			}
			if err != nil {
				return nil, fmt.Errorf("redis: get reservation %s: %w", key, err)
			}

			var r domain.CapitalReservation
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, fmt.Errorf("redis: decode reservation %s: %w", strings.TrimPrefix(key, reservationPrefix), err)
			}
			out = append(out, r)
		}

		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// Compile-time interface check.
var _ domain.ReservationStore = (*ReservationStore)(nil)
