// Package auth owns the client-side authentication lifecycle: it sequences
// login, logout and the ambient auth check, keeps the in-memory auth state,
// and resolves conflicts between the stored session and the identity the
// backend reports.
//
// State machine: anonymous (no user, no tokens) -> checking (profile
// validation in flight) -> authenticated (user set, tokens present, session
// valid) -> anonymous on any invalidation. Any failure demotes to anonymous
// rather than surfacing a fault ("fail safe to logged out").
package auth

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ecotrack-io/go-ecotrack/credentials"
	"github.com/ecotrack-io/go-ecotrack/internal/utils"
	"github.com/ecotrack-io/go-ecotrack/sessions"
	"github.com/ecotrack-io/go-ecotrack/transport"
)

// loginFallbackMessage is shown when the backend gives no usable detail.
const loginFallbackMessage = "Login failed. Please check your credentials."

// LoginResult is the outcome of a Login call. Login never fails with an
// error past the controller boundary; failures are reported here.
type LoginResult struct {
	Success bool
	Error   string
}

// Deps holds all dependencies for the Controller.
type Deps struct {
	API       *transport.Client
	Creds     credentials.Repo
	Guard     *sessions.Guard
	Navigator transport.Navigator
}

// Controller is the auth lifecycle state machine. Construct one per
// application with NewController; there is deliberately no package-level
// instance.
type Controller struct {
	api   *transport.Client
	creds credentials.Repo
	guard *sessions.Guard
	nav   transport.Navigator
	log   zerolog.Logger

	lock            sync.Mutex
	user            *transport.UserProfile
	loading         bool
	lastError       string
	loginInProgress bool

	// authEpoch increments on every state-destroying transition (login,
	// logout, clear). An ambient check commits its outcome only if the
	// epoch it started under is still current, so a check that was already
	// in flight when a login or clear happened can never overwrite the
	// newer state - not even after the login has finished.
	authEpoch uint64
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithLogger sets the logger. Credential values are never logged.
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController initializes a Controller with required dependencies and
// ensures a session record exists before the first login.
func NewController(deps Deps, options ...ControllerOption) (*Controller, error) {
	if deps.API == nil {
		return nil, errors.New("[NewController] API client is required")
	}
	if deps.Creds == nil {
		return nil, errors.New("[NewController] credentials repo is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("[NewController] session guard is required")
	}

	controller := &Controller{
		api:   deps.API,
		creds: deps.Creds,
		guard: deps.Guard,
		nav:   deps.Navigator,
		log:   zerolog.Nop(),

		// Loading until the first CheckAuthStatus resolves, so route guards
		// hold navigation instead of flashing the anonymous view.
		loading: true,
	}
	if controller.nav == nil {
		controller.nav = transport.NopNavigator()
	}
	for _, opt := range options {
		opt(controller)
	}

	controller.guard.EnsureSession()
	return controller, nil
}

// CheckAuthStatus validates the persisted credentials against the backend.
// No-op while a login is in progress. With no stored access token it
// resolves to anonymous immediately. A profile whose identity does not
// match the stored session owner is discarded and all credentials are
// cleared, even though the HTTP call succeeded: session identity is trusted
// over transport success. Failures clear credentials but never redirect;
// navigation is the caller's responsibility.
func (c *Controller) CheckAuthStatus(ctx context.Context) {
	c.lock.Lock()
	if c.loginInProgress {
		c.lock.Unlock()
		return
	}
	epoch := c.authEpoch
	c.loading = true
	c.lastError = ""
	c.lock.Unlock()

	token, _ := c.creds.Get(credentials.KeyAccessToken)
	if token == "" {
		c.commitCheck(epoch, nil, false)
		return
	}

	profile, err := c.api.Profile(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("auth check failed")
		c.commitCheck(epoch, nil, true)
		return
	}

	if !c.guard.IsSessionValid(profile.Identity()) {
		c.log.Warn().Str("user", profile.Identity()).Msg("session owner mismatch")
		c.commitCheck(epoch, nil, true)
		return
	}

	c.commitCheck(epoch, profile, false)
}

// commitCheck applies the outcome of an auth check, unless a login or an
// explicit clear superseded the check while it was in flight - then the
// stale outcome is abandoned, destructive or not. A nil profile resolves to
// anonymous; clearStore additionally wipes the credential store.
func (c *Controller) commitCheck(epoch uint64, profile *transport.UserProfile, clearStore bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.loginInProgress {
		// The login owns the lifecycle now, including the loading flag.
		return
	}
	if c.authEpoch != epoch {
		c.loading = false
		return
	}

	if clearStore {
		c.authEpoch++
		if err := c.guard.Clear(); err != nil {
			c.log.Error().Err(err).Msg("failed to clear credential store")
		}
	}
	c.user = profile
	c.loading = false
	if profile != nil {
		if data, err := json.Marshal(profile); err == nil {
			_ = c.creds.Set(credentials.KeyUserProfile, string(data))
		}
	}
}

// Login authenticates with the backend. Any credentials from a previous,
// possibly half-completed session are cleared first so they cannot leak
// into the new one. When the post-login profile fetch fails the login still
// succeeds with a minimal profile holding only the submitted username:
// degraded identity beats a login that appears to fail after token issuance
// succeeded.
func (c *Controller) Login(ctx context.Context, creds transport.Credentials) LoginResult {
	c.lock.Lock()
	c.loginInProgress = true
	c.loading = true
	c.lastError = ""
	c.lock.Unlock()

	defer func() {
		c.lock.Lock()
		c.loading = false
		c.loginInProgress = false
		c.lock.Unlock()
	}()

	c.clearAuth()

	resp, err := c.api.Login(ctx, creds)
	if err != nil {
		message := loginErrorMessage(err)
		c.log.Info().Str("username", creds.Username).Msg("login failed")
		c.clearAuth()
		c.setError(message)
		return LoginResult{Success: false, Error: message}
	}

	if err := c.creds.Set(credentials.KeyAccessToken, resp.Tokens.Access); err != nil {
		return c.failLogin(err)
	}
	if err := c.creds.Set(credentials.KeyRefreshToken, resp.Tokens.Refresh); err != nil {
		return c.failLogin(err)
	}

	profile, err := c.api.Profile(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("profile fetch failed after login, continuing with degraded profile")
		profile = &transport.UserProfile{Username: creds.Username}
	}

	if err := c.guard.StartSession(profile.Identity()); err != nil {
		return c.failLogin(err)
	}
	if data, err := json.Marshal(profile); err == nil {
		_ = c.creds.Set(credentials.KeyUserProfile, string(data))
	}

	c.lock.Lock()
	c.user = profile
	c.lock.Unlock()

	c.log.Info().Str("user", profile.Identity()).Msg("login succeeded")
	return LoginResult{Success: true}
}

// failLogin handles local persistence failures during login: the session is
// torn down and the user sees the generic message.
func (c *Controller) failLogin(err error) LoginResult {
	c.log.Error().Err(err).Msg("login aborted by credential store failure")
	c.clearAuth()
	c.setError(loginFallbackMessage)
	return LoginResult{Success: false, Error: loginFallbackMessage}
}

// Logout invalidates the refresh token server-side (best effort; failure is
// logged and ignored), unconditionally clears local credentials, and
// replaces the current location with the login view so back-navigation
// cannot return to an authenticated page.
func (c *Controller) Logout(ctx context.Context) {
	c.setLoading(true)

	if refreshToken, _ := c.creds.Get(credentials.KeyRefreshToken); refreshToken != "" {
		if err := c.api.Logout(ctx, refreshToken); err != nil {
			c.log.Warn().Err(err).Msg("server-side logout failed, continuing with local teardown")
		}
	}

	c.clearAuth()
	c.setLoading(false)
	c.nav.Replace(transport.LoginPath)
}

// ForceLogout synchronously clears credentials and redirects to login. For
// session-conflict situations detected outside the ambient check.
func (c *Controller) ForceLogout() {
	c.clearAuth()
	c.nav.Replace(transport.LoginPath)
}

// RefreshToken pre-emptively renews the access token instead of waiting for
// a 401. Returns false (with credentials cleared) when no refresh token is
// stored or the refresh fails.
func (c *Controller) RefreshToken(ctx context.Context) bool {
	refreshToken, _ := c.creds.Get(credentials.KeyRefreshToken)
	if refreshToken == "" {
		c.clearAuth()
		return false
	}
	if err := c.api.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("manual token refresh failed")
		c.clearAuth()
		return false
	}
	return true
}

// IsAuthenticated is derived, never stored: true iff a resolved user and a
// stored access token are simultaneously present.
func (c *Controller) IsAuthenticated() bool {
	c.lock.Lock()
	user := c.user
	c.lock.Unlock()
	if user == nil {
		return false
	}
	token, _ := c.creds.Get(credentials.KeyAccessToken)
	return token != ""
}

// User returns a copy of the current user profile, or nil when anonymous.
func (c *Controller) User() *transport.UserProfile {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.user == nil {
		return nil
	}
	return utils.Ptr(utils.Value(c.user))
}

// Loading reports whether an auth operation is in flight.
func (c *Controller) Loading() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.loading
}

// Err returns the last login error message, or "" when none.
func (c *Controller) Err() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastError
}

// SessionInfo returns the session guard's diagnostic snapshot.
func (c *Controller) SessionInfo() sessions.Info {
	return c.guard.SessionInfo()
}

// ClearAuth wipes persisted credentials and in-memory auth state without
// navigating anywhere.
func (c *Controller) ClearAuth() {
	c.clearAuth()
}

func (c *Controller) clearAuth() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.authEpoch++
	if err := c.guard.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear credential store")
	}
	c.user = nil
	c.lastError = ""
}

func (c *Controller) setLoading(loading bool) {
	c.lock.Lock()
	c.loading = loading
	c.lock.Unlock()
}

func (c *Controller) setError(message string) {
	c.lock.Lock()
	c.lastError = message
	c.lock.Unlock()
}

// loginErrorMessage extracts the backend's human-readable validation detail
// from a login failure, falling back to a generic message for transport
// errors the user cannot act on.
func loginErrorMessage(err error) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return loginFallbackMessage
}
