// Package transport wraps outbound HTTP calls to the ecotrack backend.
// Every authenticated request carries the stored bearer token; a request
// that fails with 401 triggers one transparent token refresh and one retry,
// with concurrent refreshes coalesced into a single in-flight call.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ecotrack-io/go-ecotrack/credentials"
)

const (
	// LoginPath is where the navigator is sent when a session becomes
	// unrecoverable.
	LoginPath = "/login"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRefreshTimeout bounds the refresh call specifically: an
	// unbounded hang there would stall every authenticated request waiting
	// behind the shared refresh.
	DefaultRefreshTimeout = 10 * time.Second

	// maxResponseSize is the maximum allowed response body size.
	maxResponseSize = 10 * 1024 * 1024

	userAgent = "go-ecotrack/1.0"
)

// Navigator abstracts the host application's view navigation so the
// transport can force a return to the login view without knowing about any
// UI. Replace must not leave the previous location reachable via history.
type Navigator interface {
	CurrentPath() string
	Replace(path string)
}

type nopNavigator struct{}

func (nopNavigator) CurrentPath() string { return "" }
func (nopNavigator) Replace(string)      {}

// NopNavigator returns a Navigator that ignores all navigation. Suitable
// for headless hosts with no view to redirect.
func NopNavigator() Navigator { return nopNavigator{} }

// Client is the HTTP client for the ecotrack backend API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	creds          credentials.Repo
	nav            Navigator
	log            zerolog.Logger
	refreshTimeout time.Duration

	// refreshGroup coalesces concurrent refresh attempts: when several
	// requests hit 401 at once, one refresh runs and all waiters share its
	// result.
	refreshGroup singleflight.Group
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets a custom underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithNavigator sets the navigator used for forced redirects to login.
func WithNavigator(nav Navigator) ClientOption {
	return func(c *Client) {
		if nav != nil {
			c.nav = nav
		}
	}
}

// WithLogger sets the logger. Credential values are never logged.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithRefreshTimeout bounds the token refresh call.
func WithRefreshTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// NewClient creates a Client for the API rooted at baseURL (e.g.
// "http://localhost:8000/api"), persisting tokens through creds.
func NewClient(baseURL string, creds credentials.Repo, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if creds == nil {
		return nil, errors.New("[NewClient] credentials repo is required")
	}

	client := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		creds:          creds,
		nav:            nopNavigator{},
		log:            zerolog.Nop(),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one outbound API call. The body is held as bytes so the
// 401 retry can replay it.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string

	// noAuth skips both the bearer header and the 401 refresh protocol.
	// Used for the login and refresh endpoints themselves.
	noAuth bool

	// retried marks that this request has spent its single refresh retry.
	// A request is never retried more than once regardless of how many
	// 401s it accumulates.
	retried bool
}

func jsonRequest(method, path string, payload any) (*request, error) {
	req := &request{method: method, path: path}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "[jsonRequest] marshal payload")
		}
		req.body = body
		req.contentType = "application/json"
	}
	return req, nil
}

// do executes req and decodes a 2xx JSON response into out (which may be
// nil). It implements the refresh-on-401 protocol described in the package
// comment.
func (c *Client) do(ctx context.Context, req *request, out any) error {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] %s %s", req.method, req.path)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] %s %s", req.method, req.path)
	}
	c.log.Debug().
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode == http.StatusUnauthorized && !req.noAuth && !req.retried {
		req.retried = true

		refreshToken, _ := c.creds.Get(credentials.KeyRefreshToken)
		if refreshToken == "" {
			// Nothing to refresh with; surface the 401 untouched.
			return parseAPIError(resp.StatusCode, body)
		}

		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			c.log.Warn().Err(refreshErr).Msg("token refresh failed, clearing credentials")
			c.clearAndRedirect()
			return errors.Wrap(ErrRefreshFailed, refreshErr.Error())
		}

		// Re-issue the original request exactly once; the fresh access
		// token is attached by newHTTPRequest.
		return c.do(ctx, req, out)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseAPIError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "[Client.do] decode %s %s response", req.method, req.path)
	}
	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *request) (*http.Request, error) {
	requestURL := c.baseURL + req.path
	if len(req.query) > 0 {
		requestURL += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, requestURL, bodyReader)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.newHTTPRequest] %s %s", req.method, req.path)
	}

	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	if !req.noAuth {
		if token, _ := c.creds.Get(credentials.KeyAccessToken); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result (including a rotated refresh token if returned).
// Concurrent callers share a single in-flight refresh. The call is bounded
// by the configured refresh timeout and detached from the first caller's
// cancellation so one cancelled waiter cannot fail the rest.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken, _ := c.creds.Get(credentials.KeyRefreshToken)
		if refreshToken == "" {
			return nil, ErrNoRefreshToken
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		resp, err := c.RefreshAccessToken(refreshCtx, refreshToken)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Refresh] RefreshAccessToken")
		}

		if err := c.creds.Set(credentials.KeyAccessToken, resp.Access); err != nil {
			return nil, errors.Wrap(err, "[Client.Refresh] persist access token")
		}
		if resp.Refresh != "" {
			if err := c.creds.Set(credentials.KeyRefreshToken, resp.Refresh); err != nil {
				return nil, errors.Wrap(err, "[Client.Refresh] persist rotated refresh token")
			}
		}
		c.log.Debug().Msg("access token refreshed")
		return resp, nil
	})
	return err
}

// clearAndRedirect wipes all credentials and sends the navigator to the
// login view, unless it is already there.
func (c *Client) clearAndRedirect() {
	if err := c.creds.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear credentials")
	}
	if c.nav.CurrentPath() != LoginPath {
		c.nav.Replace(LoginPath)
	}
}

// readBody reads the response body with a size limit.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if len(body) > maxResponseSize {
		return nil, errors.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
	}
	return body, nil
}
