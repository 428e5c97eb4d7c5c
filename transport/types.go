package transport

import "encoding/json"

// Credentials are the username/password submitted at login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is the access/refresh token pair issued at login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// UserProfile is the cached copy of the backend's authoritative profile.
// It is persisted for reload survival but always treated as provisional
// until revalidated against /auth/profile/.
type UserProfile struct {
	ID          json.Number `json:"id,omitempty"`
	Username    string      `json:"username"`
	Email       string      `json:"email,omitempty"`
	FirstName   string      `json:"first_name,omitempty"`
	LastName    string      `json:"last_name,omitempty"`
	CompanyName string      `json:"company_name,omitempty"`
	Industry    string      `json:"industry,omitempty"`
}

// Identity returns the identifier used to bind sessions to this profile:
// the backend id when present, otherwise the username.
func (p *UserProfile) Identity() string {
	if p == nil {
		return ""
	}
	if p.ID.String() != "" {
		return p.ID.String()
	}
	return p.Username
}

// LoginResponse is the payload returned by POST /auth/login/.
type LoginResponse struct {
	User   *UserProfile `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// RefreshResponse is the payload returned by POST /auth/token/refresh/.
// Refresh is only set when the backend rotates the refresh token.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RegisterRequest is the payload for POST /auth/register/.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
