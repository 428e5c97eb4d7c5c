package transport

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecotrack-io/go-ecotrack/credentials"
)

// AccessTokenExpiry returns the expiry of the stored access token, read
// from its claims without signature verification - the client holds no
// signing key and only needs the timestamp for scheduling. The second
// return is false when no token is stored or it carries no usable expiry.
func (c *Client) AccessTokenExpiry() (time.Time, bool) {
	raw, err := c.creds.Get(credentials.KeyAccessToken)
	if err != nil || raw == "" {
		return time.Time{}, false
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// RefreshIfExpiring pre-emptively refreshes the access token when it
// expires within the given window, rather than waiting for a 401. Tokens
// with no readable expiry are left to the reactive 401 path.
func (c *Client) RefreshIfExpiring(ctx context.Context, within time.Duration) error {
	expiry, ok := c.AccessTokenExpiry()
	if !ok || time.Until(expiry) > within {
		return nil
	}
	return c.Refresh(ctx)
}
