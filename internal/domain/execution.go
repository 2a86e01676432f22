package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionCommand is published on the orchestrator_commands channel for the
// external execution layer. Correlated with an ExecutionResult by
// OpportunityID.
type ExecutionCommand struct {
	OpportunityID    string            `json:"opportunity_id"`
	Strategy         StrategyType      `json:"strategy_type"`
	Token            string            `json:"token"`
	AllocatedCapital float64           `json:"allocated_capital"`
	FlashLoanAmount  float64           `json:"flash_loan_amount"`
	ExecutionPlan    map[string]string `json:"execution_plan,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// ExecutionResult arrives on the execution_results channel once the external
// execution layer has settled a command. Profit is signed: negative on loss.
type ExecutionResult struct {
	OpportunityID   string       `json:"opportunity_id"`
	Strategy        StrategyType `json:"strategy_type"`
	Success         bool         `json:"success"`
	Profit          float64      `json:"profit"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	Timestamp       time.Time    `json:"timestamp"`
}

// ParseExecutionResult decodes a results-channel payload. Decoding or
// validation failures are reported as ErrMalformedPayload.
func ParseExecutionResult(data []byte) (ExecutionResult, error) {
	var r ExecutionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if r.OpportunityID == "" {
		return ExecutionResult{}, fmt.Errorf("%w: missing opportunity_id", ErrMalformedPayload)
	}
	return r, nil
}

// SettlementRecord is the durable audit row written for every settled
// opportunity, including sweeper force-releases.
type SettlementRecord struct {
	ID               string       `json:"id"`
	OpportunityID    string       `json:"opportunity_id"`
	Strategy         StrategyType `json:"strategy_type"`
	Token            string       `json:"token"`
	Success          bool         `json:"success"`
	Profit           float64      `json:"profit"`
	ExecutionTimeMs  int64        `json:"execution_time_ms"`
	AllocatedCapital float64      `json:"allocated_capital"`
	FlashLoanAmount  float64      `json:"flash_loan_amount"`
	ForcedRelease    bool         `json:"forced_release"`
	SettledAt        time.Time    `json:"settled_at"`
}
