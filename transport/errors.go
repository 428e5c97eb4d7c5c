package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrNotAuthenticated indicates no access token is stored.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoRefreshToken indicates a refresh was requested with no stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrRefreshFailed indicates the refresh call itself failed. Terminal for
	// the current session: credentials are cleared before this is returned.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// APIError carries the backend's status code and human-readable detail for
// a non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Detail)
}

// apiErrorResponse covers the error body shapes the backend produces.
type apiErrorResponse struct {
	Detail         string   `json:"detail"`
	NonFieldErrors []string `json:"non_field_errors"`
	Message        string   `json:"message"`
}

// parseAPIError builds an APIError from a non-2xx response body, preferring
// the backend's named validation detail and falling back to the standard
// status text.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		switch {
		case resp.Detail != "":
			apiErr.Detail = resp.Detail
		case len(resp.NonFieldErrors) > 0:
			apiErr.Detail = resp.NonFieldErrors[0]
		case resp.Message != "":
			apiErr.Detail = resp.Message
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(status)
	}
	return apiErr
}
