package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quantloop/orchestrator/internal/domain"
)

// HTTPDelegate calls an external risk-manager service as the final gate rule.
// The service receives the staged opportunity payload and answers with an
// approval verdict covering correlation and concentration checks not modeled
// locally.
type HTTPDelegate struct {
	url    string
	client *http.Client
}

// NewHTTPDelegate creates a delegate posting to the given URL.
func NewHTTPDelegate(url string, timeout time.Duration) *HTTPDelegate {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPDelegate{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type delegateVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Evaluate posts the opportunity and decodes the verdict. Any transport,
// status, or decode failure is returned as an error; the gate fails closed on
// it.
func (d *HTTPDelegate) Evaluate(ctx context.Context, opp domain.Opportunity) (domain.RiskCheckResult, error) {
	payload, err := domain.EncodeOpportunity(opp)
	if err != nil {
		return domain.RiskCheckResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return domain.RiskCheckResult{}, fmt.Errorf("risk: create delegate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.RiskCheckResult{}, fmt.Errorf("risk: delegate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RiskCheckResult{}, fmt.Errorf("risk: delegate returned status %d", resp.StatusCode)
	}

	var v delegateVerdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return domain.RiskCheckResult{}, fmt.Errorf("risk: decode delegate verdict: %w", err)
	}

	return domain.RiskCheckResult{Approved: v.Approved, Reason: v.Reason}, nil
}

// Compile-time interface check.
var _ domain.RiskDelegate = (*HTTPDelegate)(nil)
