package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// CarbonScore is the computed sustainability score for a period. The
// scoring algorithm is backend-owned; this is display data.
type CarbonScore struct {
	Score       json.Number `json:"score"`
	Grade       string      `json:"grade,omitempty"`
	Trend       string      `json:"trend,omitempty"`
	PeriodStart string      `json:"period_start,omitempty"`
	PeriodEnd   string      `json:"period_end,omitempty"`
}

// BreakdownEntry is one slice of an emissions breakdown.
type BreakdownEntry struct {
	Label      string      `json:"label"`
	Value      json.Number `json:"value"`
	Percentage json.Number `json:"percentage,omitempty"`
}

// TimelinePoint is one point on the emissions timeline.
type TimelinePoint struct {
	Period string      `json:"period"`
	Value  json.Number `json:"value"`
}

// CarbonScore fetches the computed carbon score.
func (c *Client) CarbonScore(ctx context.Context, params url.Values) (*CarbonScore, error) {
	req := &request{method: http.MethodGet, path: "/analytics/carbon-score/", query: params}
	var out CarbonScore
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EmissionsBreakdown fetches the overall emissions breakdown.
func (c *Client) EmissionsBreakdown(ctx context.Context, params url.Values) ([]BreakdownEntry, error) {
	req := &request{method: http.MethodGet, path: "/analytics/breakdown/", query: params}
	var out []BreakdownEntry
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmissionsTimeline fetches emissions over time.
func (c *Client) EmissionsTimeline(ctx context.Context, params url.Values) ([]TimelinePoint, error) {
	req := &request{method: http.MethodGet, path: "/analytics/timeline/", query: params}
	var out []TimelinePoint
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MaterialBreakdown fetches the per-material emissions breakdown.
func (c *Client) MaterialBreakdown(ctx context.Context, params url.Values) ([]BreakdownEntry, error) {
	req := &request{method: http.MethodGet, path: "/analytics/material-breakdown/", query: params}
	var out []BreakdownEntry
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SupplierBreakdown fetches the per-supplier emissions breakdown.
func (c *Client) SupplierBreakdown(ctx context.Context, params url.Values) ([]BreakdownEntry, error) {
	req := &request{method: http.MethodGet, path: "/analytics/supplier-breakdown/", query: params}
	var out []BreakdownEntry
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
