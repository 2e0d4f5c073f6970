package storage

import "fmt"

// KeyKind enumerates every storage key the credential core writes, so key
// shapes are fixed at compile time instead of assembled ad hoc.
type KeyKind int

const (
	// KeyAccounts is the account registry: identifier → profile.
	KeyAccounts KeyKind = iota
	// KeyActiveAccountID is the nullable active-account pointer.
	KeyActiveAccountID
	// KeyDeviceIdentifier is the stable UUID identifying this installation
	// to the identity service.
	KeyDeviceIdentifier
	// KeyAccessToken is the per-account OAuth2 access token.
	KeyAccessToken
	// KeyRefreshToken is the per-account OAuth2 refresh token.
	KeyRefreshToken
	// KeyTokenExpiresAt is the per-account access-token expiry (unix seconds).
	KeyTokenExpiresAt
	// KeyKdfConfig is the per-account key-derivation configuration.
	KeyKdfConfig
	// KeyUserKeyEncrypted is the server-delivered user key, wrapped by the
	// stretched master key.
	KeyUserKeyEncrypted
	// KeyUserKeySession is the logical name of the session-protected user
	// key; its on-disk key additionally carries the protected prefix.
	KeyUserKeySession
)

var keyFormats = map[KeyKind]struct {
	format string
	scoped bool // requires an account identifier
}{
	KeyAccounts:         {"global_account_accounts", false},
	KeyActiveAccountID:  {"global_account_activeAccountId", false},
	KeyDeviceIdentifier: {"global_device_identifier", false},
	KeyAccessToken:      {"user_%s_token_accessToken", true},
	KeyRefreshToken:     {"user_%s_token_refreshToken", true},
	KeyTokenExpiresAt:   {"user_%s_token_expiresAt", true},
	KeyKdfConfig:        {"user_%s_kdf", true},
	KeyUserKeyEncrypted: {"user_%s_keys_userKey", true},
	KeyUserKeySession:   {"user_%s_keys_userKeySession", true},
}

// Format renders the storage key, substituting the account identifier for
// account-scoped kinds. Global kinds ignore the identifier; scoped kinds
// panic on an empty one, since that is always a programming error.
func (k KeyKind) Format(accountID string) string {
	f, ok := keyFormats[k]
	if !ok {
		panic(fmt.Sprintf("storage: unknown key kind %d", k))
	}
	if !f.scoped {
		return f.format
	}
	if accountID == "" {
		panic(fmt.Sprintf("storage: key kind %d requires an account identifier", k))
	}
	return fmt.Sprintf(f.format, accountID)
}
