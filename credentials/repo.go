package credentials

// Key identifies one persisted credential value. The key set is fixed:
// nothing else is ever written to the store.
type Key string

const (
	// KeyAccessToken is the short-lived token attached to API requests.
	KeyAccessToken Key = "access_token"

	// KeyRefreshToken is the longer-lived token used only to mint new access tokens.
	KeyRefreshToken Key = "refresh_token"

	// KeyUserProfile is the JSON-serialized cached user profile.
	KeyUserProfile Key = "user_data"

	// KeySessionID is the opaque local session identifier.
	KeySessionID Key = "session_id"

	// KeySessionOwner is the user id the current session belongs to.
	KeySessionOwner Key = "session_user_id"
)

// AllKeys lists every key the store may hold, in no particular order.
var AllKeys = []Key{
	KeyAccessToken,
	KeyRefreshToken,
	KeyUserProfile,
	KeySessionID,
	KeySessionOwner,
}

// Repo defines the interface for credential persistence. Implementations
// hold plain string values and do no validation; absence of a value is
// reported as an empty string, never as an error. Clear removes every key
// as a single operation - callers never observe a partially cleared store.
type Repo interface {
	// Set stores value under key, replacing any previous value.
	Set(key Key, value string) error

	// Get retrieves the value for key, or "" if the key is absent.
	Get(key Key) (string, error)

	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(key Key) error

	// Clear removes all keys atomically from the caller's point of view.
	Clear() error
}
