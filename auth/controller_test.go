package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecotrack-io/go-ecotrack/auth"
	"github.com/ecotrack-io/go-ecotrack/credentials"
	"github.com/ecotrack-io/go-ecotrack/credentials/repofakes"
	"github.com/ecotrack-io/go-ecotrack/sessions"
	"github.com/ecotrack-io/go-ecotrack/transport"
)

type fakeNavigator struct {
	lock     sync.Mutex
	path     string
	replaced []string
}

func (n *fakeNavigator) CurrentPath() string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.path
}

func (n *fakeNavigator) Replace(path string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.path = path
	n.replaced = append(n.replaced, path)
}

func (n *fakeNavigator) replacements() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.replaced...)
}

// authBackend is a scriptable stand-in for the auth endpoints. Handlers
// default to a healthy backend for the user alice (id 7) holding tokens
// A1/R1; individual tests override what they need.
type authBackend struct {
	lock         sync.Mutex
	loginCalls   int
	profileCalls int
	logoutCalls  int

	loginHandler   http.HandlerFunc
	profileHandler http.HandlerFunc
	logoutHandler  http.HandlerFunc
	refreshHandler http.HandlerFunc
}

func (b *authBackend) counts() (login, profile, logout int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.loginCalls, b.profileCalls, b.logoutCalls
}

func (b *authBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.loginCalls++
		handler := b.loginHandler
		b.lock.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"user":   map[string]any{"id": 7, "username": "alice"},
			"tokens": map[string]string{"access": "A1", "refresh": "R1"},
		})
	})
	mux.HandleFunc("/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.profileCalls++
		handler := b.profileHandler
		b.lock.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		writeJSON(w, map[string]any{"id": 7, "username": "alice", "email": "alice@example.com"})
	})
	mux.HandleFunc("/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.logoutCalls++
		handler := b.logoutHandler
		b.lock.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		handler := b.refreshHandler
		b.lock.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Token is invalid or expired"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

type controllerFixture struct {
	creds      *repofakes.FakeCredentialsRepo
	nav        *fakeNavigator
	backend    *authBackend
	controller *auth.Controller
}

func setupControllerFixture(t *testing.T, backend *authBackend) *controllerFixture {
	t.Helper()

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	creds := repofakes.NewFakeCredentialsRepo()
	nav := &fakeNavigator{}

	client, err := transport.NewClient(server.URL, creds, transport.WithNavigator(nav))
	require.NoError(t, err)

	guard, err := sessions.NewGuard(creds)
	require.NoError(t, err)

	controller, err := auth.NewController(auth.Deps{
		API:       client,
		Creds:     creds,
		Guard:     guard,
		Navigator: nav,
	})
	require.NoError(t, err)

	return &controllerFixture{
		creds:      creds,
		nav:        nav,
		backend:    backend,
		controller: controller,
	}
}

func (f *controllerFixture) storedValue(t *testing.T, key credentials.Key) string {
	t.Helper()
	value, err := f.creds.Get(key)
	require.NoError(t, err)
	return value
}

func TestNewControllerValidation(t *testing.T) {
	creds := repofakes.NewFakeCredentialsRepo()
	guard, err := sessions.NewGuard(creds)
	require.NoError(t, err)
	client, err := transport.NewClient("http://localhost:8000/api", creds)
	require.NoError(t, err)

	_, err = auth.NewController(auth.Deps{Creds: creds, Guard: guard})
	require.Error(t, err)

	_, err = auth.NewController(auth.Deps{API: client, Guard: guard})
	require.Error(t, err)

	_, err = auth.NewController(auth.Deps{API: client, Creds: creds})
	require.Error(t, err)
}

func TestNewControllerEnsuresSession(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	require.NotEmpty(t, f.storedValue(t, credentials.KeySessionID))
	require.Empty(t, f.storedValue(t, credentials.KeySessionOwner))
	require.True(t, f.controller.Loading(), "loading until the first auth check resolves")
}

func TestLoginPersistsTokensAndSession(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)
	require.Empty(t, result.Error)

	require.Equal(t, "A1", f.storedValue(t, credentials.KeyAccessToken))
	require.Equal(t, "R1", f.storedValue(t, credentials.KeyRefreshToken))
	require.Equal(t, "7", f.storedValue(t, credentials.KeySessionOwner))
	require.NotEmpty(t, f.storedValue(t, credentials.KeySessionID))

	var cached transport.UserProfile
	require.NoError(t, json.Unmarshal([]byte(f.storedValue(t, credentials.KeyUserProfile)), &cached))
	require.Equal(t, "alice", cached.Username)

	require.True(t, f.controller.IsAuthenticated())
	require.False(t, f.controller.Loading())
	require.Empty(t, f.controller.Err())
	require.Equal(t, "alice", f.controller.User().Username)
}

func TestLoginThenLogoutEmptiesStore(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	f.controller.Logout(context.Background())

	require.Zero(t, f.creds.Len(), "logout must leave no residue at all")
	require.Nil(t, f.controller.User())
	require.False(t, f.controller.IsAuthenticated())
	require.Equal(t, []string{transport.LoginPath}, f.nav.replacements())

	_, _, logoutCalls := backend.counts()
	require.Equal(t, 1, logoutCalls)
}

func TestLogoutSwallowsServerFailure(t *testing.T) {
	backend := &authBackend{}
	backend.logoutHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	f.controller.Logout(context.Background())

	require.Zero(t, f.creds.Len())
	require.False(t, f.controller.IsAuthenticated())
	require.Contains(t, f.nav.replacements(), transport.LoginPath)
}

func TestLoginFailureSurfacesBackendDetail(t *testing.T) {
	backend := &authBackend{}
	backend.loginHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "No active account found with the given credentials"})
	}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "wrong"})
	require.False(t, result.Success)
	require.Equal(t, "No active account found with the given credentials", result.Error)
	require.Equal(t, result.Error, f.controller.Err())

	require.Empty(t, f.storedValue(t, credentials.KeyAccessToken))
	require.Empty(t, f.storedValue(t, credentials.KeyRefreshToken))
	require.False(t, f.controller.IsAuthenticated())
	require.False(t, f.controller.Loading())
}

func TestLoginFailureGenericMessageForTransportError(t *testing.T) {
	backend := &authBackend{}
	backend.loginHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.False(t, result.Success)
	require.Equal(t, "Login failed. Please check your credentials.", result.Error)
}

func TestLoginDegradedProfileFallback(t *testing.T) {
	backend := &authBackend{}
	backend.profileHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success, "token issuance succeeded, so login succeeds")

	user := f.controller.User()
	require.NotNil(t, user)
	require.Equal(t, "alice", user.Username)
	require.Empty(t, user.Email)

	// The degraded session is bound to the only identity we have.
	require.Equal(t, "alice", f.storedValue(t, credentials.KeySessionOwner))
	require.True(t, f.controller.IsAuthenticated())
}

func TestLoginClearsPreviousUserResidue(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "stale-access"))
	require.NoError(t, f.creds.Set(credentials.KeyUserProfile, `{"username":"bob"}`))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "3"))

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	require.Equal(t, "A1", f.storedValue(t, credentials.KeyAccessToken))
	require.Equal(t, "7", f.storedValue(t, credentials.KeySessionOwner))

	var cached transport.UserProfile
	require.NoError(t, json.Unmarshal([]byte(f.storedValue(t, credentials.KeyUserProfile)), &cached))
	require.Equal(t, "alice", cached.Username)
}

func TestIsAuthenticatedNeedsUserAndToken(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	require.False(t, f.controller.IsAuthenticated(), "no user, no token")

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)
	require.True(t, f.controller.IsAuthenticated())

	// A user without a token is not authenticated, and vice versa.
	require.NoError(t, f.creds.Delete(credentials.KeyAccessToken))
	require.False(t, f.controller.IsAuthenticated())
}

func TestCheckAuthStatusAnonymousWithoutToken(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	f.controller.CheckAuthStatus(context.Background())

	require.Nil(t, f.controller.User())
	require.False(t, f.controller.Loading())

	_, profileCalls, _ := backend.counts()
	require.Zero(t, profileCalls, "no token means no network round trip")
}

func TestCheckAuthStatusRestoresUser(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "A1"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R1"))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "7"))

	f.controller.CheckAuthStatus(context.Background())

	user := f.controller.User()
	require.NotNil(t, user)
	require.Equal(t, "alice", user.Username)
	require.True(t, f.controller.IsAuthenticated())
	require.False(t, f.controller.Loading())

	var cached transport.UserProfile
	require.NoError(t, json.Unmarshal([]byte(f.storedValue(t, credentials.KeyUserProfile)), &cached))
	require.Equal(t, "alice", cached.Username)
}

func TestCheckAuthStatusSessionOwnerMismatch(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	// Tokens resolve to alice (id 7) but the session belongs to someone else.
	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "A1"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R1"))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "3"))

	f.controller.CheckAuthStatus(context.Background())

	require.Nil(t, f.controller.User(), "a valid HTTP response must not override session identity")
	require.False(t, f.controller.IsAuthenticated())
	require.Zero(t, f.creds.Len())
	require.False(t, f.controller.Loading())
}

func TestCheckAuthStatusInvalidTokensResolveAnonymous(t *testing.T) {
	backend := &authBackend{}
	backend.profileHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Given token not valid for any token type"})
	}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "expired"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "also-expired"))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "7"))

	f.controller.CheckAuthStatus(context.Background())

	require.Nil(t, f.controller.User())
	require.False(t, f.controller.IsAuthenticated())
	require.False(t, f.controller.Loading())
	require.Zero(t, f.creds.Len())
}

func TestCheckAuthStatusNoOpDuringLogin(t *testing.T) {
	backend := &authBackend{}
	loginStarted := make(chan struct{})
	releaseLogin := make(chan struct{})
	backend.loginHandler = func(w http.ResponseWriter, r *http.Request) {
		close(loginStarted)
		<-releaseLogin
		writeJSON(w, map[string]any{
			"user":   map[string]any{"id": 7, "username": "alice"},
			"tokens": map[string]string{"access": "A1", "refresh": "R1"},
		})
	}
	f := setupControllerFixture(t, backend)

	done := make(chan auth.LoginResult, 1)
	go func() {
		done <- f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	}()

	select {
	case <-loginStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("login request never reached the backend")
	}

	// The ambient check must yield while login holds the lifecycle.
	f.controller.CheckAuthStatus(context.Background())
	_, profileCalls, _ := backend.counts()
	require.Zero(t, profileCalls, "check must not race the in-flight login")

	close(releaseLogin)
	select {
	case result := <-done:
		require.True(t, result.Success)
	case <-time.After(5 * time.Second):
		t.Fatal("login never completed")
	}

	require.True(t, f.controller.IsAuthenticated())
	require.Equal(t, "7", f.storedValue(t, credentials.KeySessionOwner))
}

func TestCheckAuthStatusResolvingLateDoesNotClobberLogin(t *testing.T) {
	backend := &authBackend{}
	staleFetchStarted := make(chan struct{})
	releaseStaleFetch := make(chan struct{})
	backend.profileHandler = func(w http.ResponseWriter, r *http.Request) {
		// The check's fetch rides the pre-login token; hold it until the
		// login has fully committed, then fail it.
		if r.Header.Get("Authorization") == "Bearer stale" {
			close(staleFetchStarted)
			<-releaseStaleFetch
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"id": 7, "username": "alice"})
	}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "stale"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R-stale"))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "7"))

	checkDone := make(chan struct{})
	go func() {
		defer close(checkDone)
		f.controller.CheckAuthStatus(context.Background())
	}()

	select {
	case <-staleFetchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("auth check never reached the backend")
	}

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	close(releaseStaleFetch)
	select {
	case <-checkDone:
	case <-time.After(5 * time.Second):
		t.Fatal("auth check never resolved")
	}

	// The stale check's failure must not tear down the login it lost to.
	require.Equal(t, "A1", f.storedValue(t, credentials.KeyAccessToken))
	require.Equal(t, "R1", f.storedValue(t, credentials.KeyRefreshToken))
	require.Equal(t, "7", f.storedValue(t, credentials.KeySessionOwner))
	require.True(t, f.controller.IsAuthenticated())
	require.Equal(t, "alice", f.controller.User().Username)
	require.False(t, f.controller.Loading())
}

func TestCheckAuthStatusMismatchResolvingLateDoesNotClobberLogin(t *testing.T) {
	backend := &authBackend{}
	staleFetchStarted := make(chan struct{})
	releaseStaleFetch := make(chan struct{})
	backend.profileHandler = func(w http.ResponseWriter, r *http.Request) {
		// Same shape as the failure variant, but the held fetch succeeds
		// with a profile the stored session no longer matches.
		if r.Header.Get("Authorization") == "Bearer stale" {
			close(staleFetchStarted)
			<-releaseStaleFetch
			writeJSON(w, map[string]any{"id": 3, "username": "bob"})
			return
		}
		writeJSON(w, map[string]any{"id": 7, "username": "alice"})
	}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "stale"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R-stale"))
	require.NoError(t, f.creds.Set(credentials.KeySessionOwner, "3"))

	checkDone := make(chan struct{})
	go func() {
		defer close(checkDone)
		f.controller.CheckAuthStatus(context.Background())
	}()

	select {
	case <-staleFetchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("auth check never reached the backend")
	}

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	close(releaseStaleFetch)
	select {
	case <-checkDone:
	case <-time.After(5 * time.Second):
		t.Fatal("auth check never resolved")
	}

	require.Equal(t, "A1", f.storedValue(t, credentials.KeyAccessToken))
	require.Equal(t, "7", f.storedValue(t, credentials.KeySessionOwner))
	require.True(t, f.controller.IsAuthenticated())
	require.Equal(t, "alice", f.controller.User().Username)
}

func TestForceLogout(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	f.controller.ForceLogout()

	require.Zero(t, f.creds.Len())
	require.False(t, f.controller.IsAuthenticated())
	require.Contains(t, f.nav.replacements(), transport.LoginPath)

	_, _, logoutCalls := backend.counts()
	require.Zero(t, logoutCalls, "force logout never calls the backend")
}

func TestRefreshTokenSuccess(t *testing.T) {
	backend := &authBackend{}
	backend.refreshHandler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"access": "A2"})
	}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "A1"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R1"))

	require.True(t, f.controller.RefreshToken(context.Background()))
	require.Equal(t, "A2", f.storedValue(t, credentials.KeyAccessToken))
}

func TestRefreshTokenFailureClearsCredentials(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "A1"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "R1"))

	require.False(t, f.controller.RefreshToken(context.Background()))
	require.Zero(t, f.creds.Len())
}

func TestRefreshTokenWithoutStoredToken(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)
	require.NoError(t, f.creds.Delete(credentials.KeySessionID))

	require.False(t, f.controller.RefreshToken(context.Background()))
	require.Zero(t, f.creds.Len())
}

func TestSessionInfoReflectsLifecycle(t *testing.T) {
	backend := &authBackend{}
	f := setupControllerFixture(t, backend)

	info := f.controller.SessionInfo()
	require.NotEmpty(t, info.SessionID)
	require.False(t, info.HasTokens)

	result := f.controller.Login(context.Background(), transport.Credentials{Username: "alice", Password: "p1"})
	require.True(t, result.Success)

	info = f.controller.SessionInfo()
	require.Equal(t, "7", info.UserID)
	require.True(t, info.HasTokens)
	require.True(t, info.HasUserData)

	f.controller.Logout(context.Background())
	info = f.controller.SessionInfo()
	require.Empty(t, info.SessionID)
	require.Empty(t, info.UserID)
	require.False(t, info.HasTokens)
}
