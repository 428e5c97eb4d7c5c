package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/ecotrack-io/go-ecotrack/credentials"
)

// Login posts credentials to the backend. On success it returns the profile
// (when provided inline) and the issued token pair. The caller is
// responsible for persisting the tokens; Login itself does not touch the
// store. A non-2xx response surfaces as *APIError carrying the backend's
// validation detail.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/login/", creds)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	// Login never rides an existing session: no bearer, no refresh retry.
	req.noAuth = true

	var out LoginResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the backend to invalidate refreshToken. Best effort: callers
// must treat failure as non-fatal and proceed with local teardown.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req, err := jsonRequest(http.MethodPost, "/auth/logout/", logoutRequest{RefreshToken: refreshToken})
	if err != nil {
		return errors.Wrap(err, "[Client.Logout]")
	}
	return c.do(ctx, req, nil)
}

// RefreshAccessToken exchanges refreshToken for a new access token,
// optionally rotating the refresh token. It performs the bare exchange; use
// Refresh for the persisted, deduplicated variant.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.RefreshAccessToken]")
	}
	req.noAuth = true

	var out RefreshResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the authenticated user's profile. Fails fast with
// ErrNotAuthenticated when no access token is stored.
func (c *Client) Profile(ctx context.Context) (*UserProfile, error) {
	token, err := c.creds.Get(credentials.KeyAccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Profile] read access token")
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	req := &request{method: http.MethodGet, path: "/auth/profile/"}
	var out UserProfile
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, reg RegisterRequest) (*UserProfile, error) {
	req, err := jsonRequest(http.MethodPost, "/auth/register/", reg)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Register]")
	}
	req.noAuth = true

	var out UserProfile
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile patches the authenticated user's profile with the given
// fields and returns the updated document.
func (c *Client) UpdateProfile(ctx context.Context, updates map[string]any) (*UserProfile, error) {
	req, err := jsonRequest(http.MethodPatch, "/auth/profile/", updates)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.UpdateProfile]")
	}

	var out UserProfile
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword changes the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	req, err := jsonRequest(http.MethodPost, "/auth/change-password/", changePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
	if err != nil {
		return errors.Wrap(err, "[Client.ChangePassword]")
	}
	return c.do(ctx, req, nil)
}

// DashboardData fetches the aggregate dashboard document. The shape is
// backend-defined, so it is returned raw.
func (c *Client) DashboardData(ctx context.Context) (map[string]json.RawMessage, error) {
	req := &request{method: http.MethodGet, path: "/auth/dashboard/"}
	var out map[string]json.RawMessage
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
