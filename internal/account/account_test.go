package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/crypto"
	"github.com/keywarden/keywarden/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return NewRegistry(store, zap.NewNop()), store
}

func TestRegistryUpsertGet(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, ok, err := r.Get("id1")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Account{Email: "a@b.c", Name: "Alice", EmailVerified: true}
	require.NoError(t, r.Upsert("id1", want))

	got, ok, err := r.Get("id1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// Upsert replaces.
	want.Name = "Alice B"
	require.NoError(t, r.Upsert("id1", want))
	got, _, err = r.Get("id1")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", got.Name)
}

func TestActivePointer(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, ok, err := r.ActiveID()
	require.NoError(t, err)
	assert.False(t, ok)

	// The pointer may only name an existing entry.
	err = r.SetActive("ghost")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	require.NoError(t, r.Upsert("id1", Account{Email: "a@b.c"}))
	require.NoError(t, r.SetActive("id1"))

	id, ok, err := r.ActiveID()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id1", id)

	require.NoError(t, r.ClearActive())
	_, ok, err = r.ActiveID()
	require.NoError(t, err)
	assert.False(t, ok)

	// Registry entry survives the cleared pointer.
	_, ok, err = r.Get("id1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionStateRoundTrip(t *testing.T) {
	_, store := newTestRegistry(t)
	ss := NewSessionState(store)

	sessionKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	userKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	want := userKey.ToBase64()

	require.NoError(t, ss.StoreUserKey("id1", userKey, sessionKey))

	got, ok, err := ss.LoadUserKey("id1", sessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got.ToBase64())
}

func TestSessionState_WrongSessionKey(t *testing.T) {
	_, store := newTestRegistry(t)
	ss := NewSessionState(store)

	k1, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	k2, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	userKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	require.NoError(t, ss.StoreUserKey("id1", userKey, k1))

	_, _, err = ss.LoadUserKey("id1", k2)
	assert.ErrorIs(t, err, crypto.ErrDecryptFailed)
}

func TestSessionState_Clear(t *testing.T) {
	_, store := newTestRegistry(t)
	ss := NewSessionState(store)

	sessionKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)
	userKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	// Clearing an absent hint is fine.
	require.NoError(t, ss.Clear("id1"))

	require.NoError(t, ss.StoreUserKey("id1", userKey, sessionKey))
	require.NoError(t, ss.Clear("id1"))

	_, ok, err := ss.LoadUserKey("id1", sessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
