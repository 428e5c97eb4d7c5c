// Package sessions tracks which user the locally persisted credentials
// belong to. Each successful login binds the credential store to one user
// through a session record (opaque id + owner user id); the guard detects
// credentials that outlived their owner, e.g. after another user logged in
// from the same machine.
package sessions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ecotrack-io/go-ecotrack/credentials"
)

// Info is a read-only diagnostic snapshot of the stored session.
type Info struct {
	SessionID   string
	UserID      string
	HasTokens   bool
	HasUserData bool
}

// Guard validates session identity against the credential store.
type Guard struct {
	repo    credentials.Repo
	nowTime func() time.Time
}

// GuardOption defines a function type to modify the Guard instance.
type GuardOption func(*Guard)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GuardOption {
	return func(g *Guard) {
		g.nowTime = nowFunc
	}
}

// NewGuard creates a Guard over the given credential store.
func NewGuard(repo credentials.Repo, options ...GuardOption) (*Guard, error) {
	if repo == nil {
		return nil, errors.New("[NewGuard] credentials repo is required")
	}
	guard := &Guard{
		repo:    repo,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(guard)
	}
	return guard, nil
}

// EnsureSession returns the stored session id, generating and persisting a
// fresh one if none exists yet. Called once at startup so a session id is
// always present before the first login.
func (g *Guard) EnsureSession() string {
	if id, _ := g.repo.Get(credentials.KeySessionID); id != "" {
		return id
	}
	id := g.newSessionID()
	_ = g.repo.Set(credentials.KeySessionID, id)
	return id
}

// IsSessionValid reports whether the stored session belongs to
// candidateUserID. An absent owner never validates.
func (g *Guard) IsSessionValid(candidateUserID string) bool {
	owner, _ := g.repo.Get(credentials.KeySessionOwner)
	return owner != "" && owner == candidateUserID
}

// StartSession replaces the session record wholesale: any existing session
// id and owner are discarded, a fresh id is generated, and userID is
// recorded as the new owner.
func (g *Guard) StartSession(userID string) error {
	if err := g.repo.Delete(credentials.KeySessionID); err != nil {
		return errors.Wrap(err, "[Guard.StartSession] delete session id")
	}
	if err := g.repo.Delete(credentials.KeySessionOwner); err != nil {
		return errors.Wrap(err, "[Guard.StartSession] delete session owner")
	}
	if err := g.repo.Set(credentials.KeySessionID, g.newSessionID()); err != nil {
		return errors.Wrap(err, "[Guard.StartSession] set session id")
	}
	if err := g.repo.Set(credentials.KeySessionOwner, userID); err != nil {
		return errors.Wrap(err, "[Guard.StartSession] set session owner")
	}
	return nil
}

// Clear wipes the whole credential store: session record, token pair and
// cached profile are destroyed together.
func (g *Guard) Clear() error {
	return errors.Wrap(g.repo.Clear(), "[Guard.Clear] repo.Clear")
}

// SessionInfo returns a diagnostic snapshot. It never mutates state.
func (g *Guard) SessionInfo() Info {
	sessionID, _ := g.repo.Get(credentials.KeySessionID)
	userID, _ := g.repo.Get(credentials.KeySessionOwner)
	access, _ := g.repo.Get(credentials.KeyAccessToken)
	refresh, _ := g.repo.Get(credentials.KeyRefreshToken)
	profile, _ := g.repo.Get(credentials.KeyUserProfile)

	return Info{
		SessionID:   sessionID,
		UserID:      userID,
		HasTokens:   access != "" && refresh != "",
		HasUserData: profile != "",
	}
}

// newSessionID builds a session id that is unique with overwhelming
// probability: millisecond timestamp prefix plus a random suffix. Session
// ids are local bookkeeping, not secrets, so no cryptographic requirement.
func (g *Guard) newSessionID() string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("session_%d_%s", g.nowTime().UnixMilli(), suffix)
}
