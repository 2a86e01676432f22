package domain

import (
	"encoding/json"
	"time"
)

// PortfolioState is the authoritative capital snapshot. Only the CapitalLedger
// mutates it; everyone else reads value copies.
type PortfolioState struct {
	TotalCapital     float64
	AvailableCapital float64
	AllocatedCapital float64
	FlashLoanUsed    float64
	FlashLoanLimit   float64
	OpenPositions    int
	MaxPositions     int
	DailyPnL         float64
	LastUpdate       time.Time
}

// Heat returns the ratio of allocated to total capital.
func (p PortfolioState) Heat() float64 {
	if p.TotalCapital <= 0 {
		return 0
	}
	return p.AllocatedCapital / p.TotalCapital
}

// LeverageRatio returns (allocated + borrowed) over total capital.
func (p PortfolioState) LeverageRatio() float64 {
	if p.TotalCapital <= 0 {
		return 0
	}
	return (p.AllocatedCapital + p.FlashLoanUsed) / p.TotalCapital
}

// CapitalReservation is a TTL-bounded exclusive hold on capital pending an
// execution outcome. It is consumed exactly once by a release (settlement,
// dispatch failure, or sweeper).
type CapitalReservation struct {
	OpportunityID    string
	Strategy         StrategyType
	Token            string
	AllocatedCapital float64
	FlashLoanAmount  float64
	CreatedAt        time.Time
	TTL              time.Duration
	Metadata         map[string]string
}

// Expired reports whether the reservation's TTL has elapsed at the given
// instant without an explicit release.
func (r CapitalReservation) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.TTL
}

// reservationPayload is the JSON schema mirrored to the shared reservation
// store under capital_reservation:{opportunityId}. The TTL is carried in
// seconds so external readers see the documented unit, not nanoseconds.
type reservationPayload struct {
	OpportunityID    string            `json:"opportunity_id"`
	StrategyType     string            `json:"strategy_type"`
	Token            string            `json:"token,omitempty"`
	AllocatedCapital float64           `json:"allocated_capital"`
	FlashLoanAmount  float64           `json:"flash_loan_amount"`
	CreatedAt        time.Time         `json:"created_at"`
	TTLSeconds       int64             `json:"ttl_seconds"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON encodes the reservation in the mirror schema.
func (r CapitalReservation) MarshalJSON() ([]byte, error) {
	return json.Marshal(reservationPayload{
		OpportunityID:    r.OpportunityID,
		StrategyType:     string(r.Strategy),
		Token:            r.Token,
		AllocatedCapital: r.AllocatedCapital,
		FlashLoanAmount:  r.FlashLoanAmount,
		CreatedAt:        r.CreatedAt.UTC(),
		TTLSeconds:       int64(r.TTL / time.Second),
		Metadata:         r.Metadata,
	})
}

// UnmarshalJSON decodes the mirror schema back into a reservation.
func (r *CapitalReservation) UnmarshalJSON(data []byte) error {
	var p reservationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = CapitalReservation{
		OpportunityID:    p.OpportunityID,
		Strategy:         StrategyType(p.StrategyType),
		Token:            p.Token,
		AllocatedCapital: p.AllocatedCapital,
		FlashLoanAmount:  p.FlashLoanAmount,
		CreatedAt:        p.CreatedAt,
		TTL:              time.Duration(p.TTLSeconds) * time.Second,
		Metadata:         p.Metadata,
	}
	return nil
}
