package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// WhatIfScenario describes a percentage-based what-if adjustment, e.g.
// "reduce steel purchases by 20%".
type WhatIfScenario struct {
	Name          string      `json:"name,omitempty"`
	Category      string      `json:"category"`
	ChangePercent json.Number `json:"change_percent"`
}

// SimulationResult is the backend's projection for a scenario.
type SimulationResult struct {
	ScenarioID     json.Number     `json:"scenario_id,omitempty"`
	CurrentScore   json.Number     `json:"current_score"`
	ProjectedScore json.Number     `json:"projected_score"`
	CarbonSavings  json.Number     `json:"carbon_savings,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
}

// RunWhatIf runs a what-if simulation without saving it.
func (c *Client) RunWhatIf(ctx context.Context, scenario WhatIfScenario) (*SimulationResult, error) {
	req, err := jsonRequest(http.MethodPost, "/simulations/what-if/", scenario)
	if err != nil {
		return nil, err
	}
	var out SimulationResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SavedScenarios lists the user's saved scenarios.
func (c *Client) SavedScenarios(ctx context.Context) ([]WhatIfScenario, error) {
	req := &request{method: http.MethodGet, path: "/simulations/scenarios/"}
	var out []WhatIfScenario
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveScenario persists a scenario server-side.
func (c *Client) SaveScenario(ctx context.Context, scenario WhatIfScenario) error {
	req, err := jsonRequest(http.MethodPost, "/simulations/save/", scenario)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// SimulationHistory lists previously run simulations.
func (c *Client) SimulationHistory(ctx context.Context) ([]SimulationResult, error) {
	req := &request{method: http.MethodGet, path: "/simulations/history/"}
	var out []SimulationResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
