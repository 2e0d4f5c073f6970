package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyKindFormat(t *testing.T) {
	assert.Equal(t, "global_account_accounts", KeyAccounts.Format(""))
	assert.Equal(t, "global_account_activeAccountId", KeyActiveAccountID.Format("ignored"))
	assert.Equal(t, "global_device_identifier", KeyDeviceIdentifier.Format(""))

	assert.Equal(t, "user_abc_token_accessToken", KeyAccessToken.Format("abc"))
	assert.Equal(t, "user_abc_token_refreshToken", KeyRefreshToken.Format("abc"))
	assert.Equal(t, "user_abc_token_expiresAt", KeyTokenExpiresAt.Format("abc"))
	assert.Equal(t, "user_abc_kdf", KeyKdfConfig.Format("abc"))
	assert.Equal(t, "user_abc_keys_userKey", KeyUserKeyEncrypted.Format("abc"))
	assert.Equal(t, "user_abc_keys_userKeySession", KeyUserKeySession.Format("abc"))
}

func TestKeyKindFormat_ScopedRequiresID(t *testing.T) {
	assert.Panics(t, func() { KeyAccessToken.Format("") })
}
