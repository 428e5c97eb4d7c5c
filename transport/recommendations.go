package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Recommendation is one sustainability recommendation produced by the
// backend's recommendation engine.
type Recommendation struct {
	ID                 json.Number `json:"id"`
	Category           string      `json:"category"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	Priority           string      `json:"priority,omitempty"`
	EstimatedReduction json.Number `json:"estimated_reduction,omitempty"`
	Implemented        bool        `json:"implemented"`
}

// Recommendations lists recommendations, optionally filtered via params.
func (c *Client) Recommendations(ctx context.Context, params url.Values) ([]Recommendation, error) {
	req := &request{method: http.MethodGet, path: "/recommendations/", query: params}
	var out []Recommendation
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecommendationsByCategory lists recommendations for one category.
func (c *Client) RecommendationsByCategory(ctx context.Context, category string) ([]Recommendation, error) {
	req := &request{method: http.MethodGet, path: fmt.Sprintf("/recommendations/%s/", category)}
	var out []Recommendation
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRecommendationImplemented records that the user acted on a
// recommendation.
func (c *Client) MarkRecommendationImplemented(ctx context.Context, id string) error {
	req := &request{method: http.MethodPost, path: fmt.Sprintf("/recommendations/%s/implement/", id)}
	return c.do(ctx, req, nil)
}

// PriorityRecommendations lists the highest-priority recommendations.
func (c *Client) PriorityRecommendations(ctx context.Context) ([]Recommendation, error) {
	req := &request{method: http.MethodGet, path: "/recommendations/priority/"}
	var out []Recommendation
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
