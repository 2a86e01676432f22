// Package domain defines the core types, interfaces, and sentinel errors
// shared by every layer of the orchestrator. It has no dependencies on
// infrastructure packages.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// StrategyType identifies which analyzer family produced an opportunity.
type StrategyType string

const (
	StrategyArbitrage      StrategyType = "arbitrage"
	StrategySniperMomentum StrategyType = "sniper_momentum"
	StrategyFlashLoan      StrategyType = "flash_loan"
	StrategyWhaleTracking  StrategyType = "whale_tracking"
	StrategySentiment      StrategyType = "sentiment"
	StrategyVolumeSurge    StrategyType = "volume_surge"
)

// knownStrategies enumerates the accepted strategy types.
var knownStrategies = map[StrategyType]bool{
	StrategyArbitrage:      true,
	StrategySniperMomentum: true,
	StrategyFlashLoan:      true,
	StrategyWhaleTracking:  true,
	StrategySentiment:      true,
	StrategyVolumeSurge:    true,
}

// Valid reports whether s is a recognized strategy type.
func (s StrategyType) Valid() bool {
	return knownStrategies[s]
}

// Opportunity is a pre-scored candidate trade staged by an external analyzer.
// It is immutable once published; the orchestrator consumes it at most once.
type Opportunity struct {
	ID              string
	Strategy        StrategyType
	Token           string
	Confidence      float64 // [0, 1]
	ExpectedReturn  float64 // capital units
	RiskScore       float64 // [0, 1]
	RequiredCapital float64
	FlashLoanAmount float64
	CreatedAt       time.Time
	TTL             time.Duration
	Metadata        map[string]string
}

// ExpiresAt returns the instant after which the opportunity is stale.
func (o Opportunity) ExpiresAt() time.Time {
	return o.CreatedAt.Add(o.TTL)
}

// Expired reports whether the opportunity has outlived its TTL at the given
// instant.
func (o Opportunity) Expired(now time.Time) bool {
	return now.Sub(o.CreatedAt) > o.TTL
}

// opportunityPayload is the JSON schema analyzers push into the staging store.
type opportunityPayload struct {
	ID              string            `json:"id"`
	StrategyType    string            `json:"strategy_type"`
	Token           string            `json:"token"`
	Confidence      float64           `json:"confidence"`
	ExpectedReturn  float64           `json:"expected_return"`
	RiskScore       float64           `json:"risk_score"`
	RequiredCapital float64           `json:"required_capital"`
	FlashLoanAmount float64           `json:"flash_loan_amount"`
	Timestamp       time.Time         `json:"timestamp"`
	TTLSeconds      int64             `json:"ttl_seconds"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ParseOpportunity decodes and validates a staged opportunity payload. Any
// decoding or validation failure is reported as ErrMalformedPayload so callers
// can discard the single message and continue.
func ParseOpportunity(data []byte) (Opportunity, error) {
	var p opportunityPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Opportunity{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.ID == "" {
		return Opportunity{}, fmt.Errorf("%w: missing id", ErrMalformedPayload)
	}
	if !StrategyType(p.StrategyType).Valid() {
		return Opportunity{}, fmt.Errorf("%w: unknown strategy_type %q", ErrMalformedPayload, p.StrategyType)
	}
	if p.RequiredCapital < 0 || p.FlashLoanAmount < 0 {
		return Opportunity{}, fmt.Errorf("%w: negative capital amounts", ErrMalformedPayload)
	}
	if p.Confidence < 0 || p.Confidence > 1 || p.RiskScore < 0 || p.RiskScore > 1 {
		return Opportunity{}, fmt.Errorf("%w: confidence/risk_score out of [0,1]", ErrMalformedPayload)
	}
	if p.TTLSeconds <= 0 {
		return Opportunity{}, fmt.Errorf("%w: ttl_seconds must be positive", ErrMalformedPayload)
	}
	if p.Timestamp.IsZero() {
		return Opportunity{}, fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}

	return Opportunity{
		ID:              p.ID,
		Strategy:        StrategyType(p.StrategyType),
		Token:           p.Token,
		Confidence:      p.Confidence,
		ExpectedReturn:  p.ExpectedReturn,
		RiskScore:       p.RiskScore,
		RequiredCapital: p.RequiredCapital,
		FlashLoanAmount: p.FlashLoanAmount,
		CreatedAt:       p.Timestamp.UTC(),
		TTL:             time.Duration(p.TTLSeconds) * time.Second,
		Metadata:        p.Metadata,
	}, nil
}

// EncodeOpportunity serializes an opportunity back to the staging schema.
// Used by analyzers in this codebase's test fixtures and tooling.
func EncodeOpportunity(o Opportunity) ([]byte, error) {
	p := opportunityPayload{
		ID:              o.ID,
		StrategyType:    string(o.Strategy),
		Token:           o.Token,
		Confidence:      o.Confidence,
		ExpectedReturn:  o.ExpectedReturn,
		RiskScore:       o.RiskScore,
		RequiredCapital: o.RequiredCapital,
		FlashLoanAmount: o.FlashLoanAmount,
		Timestamp:       o.CreatedAt.UTC(),
		TTLSeconds:      int64(o.TTL / time.Second),
		Metadata:        o.Metadata,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("domain: encode opportunity %s: %w", o.ID, err)
	}
	return data, nil
}
