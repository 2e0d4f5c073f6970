package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywarden/keywarden/internal/crypto"
)

func TestSecureStoreRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	secure := NewSecureStore(s)

	key, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	require.NoError(t, secure.SetSecure("user_abc_keys_userKeySession", []byte("raw key material"), key))

	got, ok, err := secure.GetSecure("user_abc_keys_userKeySession", key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("raw key material"), got)
}

func TestSecureStore_PlainGetSeesCiphertext(t *testing.T) {
	s, _ := openTestStore(t)
	secure := NewSecureStore(s)

	key, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	require.NoError(t, secure.SetSecure("logical", []byte("plaintext"), key))

	// The raw entry lives under the protected prefix and holds envelope
	// text, never the plaintext.
	var raw string
	ok, err := s.Get(ProtectedPrefix+"logical", &raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(raw, "2."))
	assert.NotContains(t, raw, "plaintext")

	var missing string
	ok, err = s.Get("logical", &missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecureStore_WrongKeyFails(t *testing.T) {
	s, _ := openTestStore(t)
	secure := NewSecureStore(s)

	k1, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	k2, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	require.NoError(t, secure.SetSecure("logical", []byte("plaintext"), k1))

	_, _, err = secure.GetSecure("logical", k2)
	assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestSecureStore_MissingAndRemove(t *testing.T) {
	s, _ := openTestStore(t)
	secure := NewSecureStore(s)

	key, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	_, ok, err := secure.GetSecure("absent", key)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := secure.RemoveSecure("absent")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, secure.SetSecure("present", []byte("x"), key))
	removed, err = secure.RemoveSecure("present")
	require.NoError(t, err)
	assert.True(t, removed)
}
