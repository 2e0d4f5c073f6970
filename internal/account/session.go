package account

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/keywarden/keywarden/internal/crypto"
	"github.com/keywarden/keywarden/internal/storage"
)

// SessionState manages the session-protected copy of the user key: the
// only locally decryptable hint that a session key is still valid. Locking
// an account clears it; tokens and the master-key-wrapped user key stay.
type SessionState struct {
	secure *storage.SecureStore
}

// NewSessionState wraps the shared store.
func NewSessionState(store *storage.Store) *SessionState {
	return &SessionState{secure: storage.NewSecureStore(store)}
}

// StoreUserKey seals the user key's raw bytes under the session key and
// persists the envelope.
func (s *SessionState) StoreUserKey(accountID string, userKey, sessionKey *crypto.SymmetricKey) error {
	raw := userKey.Bytes()
	defer memguard.WipeBytes(raw)
	if err := s.secure.SetSecure(storage.KeyUserKeySession.Format(accountID), raw, sessionKey); err != nil {
		return fmt.Errorf("store session user key: %w", err)
	}
	return nil
}

// LoadUserKey opens the session-protected envelope and reconstitutes the
// user key directly from its raw bytes.
func (s *SessionState) LoadUserKey(accountID string, sessionKey *crypto.SymmetricKey) (*crypto.SymmetricKey, bool, error) {
	raw, ok, err := s.secure.GetSecure(storage.KeyUserKeySession.Format(accountID), sessionKey)
	if err != nil || !ok {
		return nil, false, err
	}
	key, err := crypto.NewSymmetricKey(raw)
	if err != nil {
		memguard.WipeBytes(raw)
		return nil, false, fmt.Errorf("reconstruct user key: %w", err)
	}
	return key, true, nil
}

// Clear removes the session hint. Missing hints are a no-op.
func (s *SessionState) Clear(accountID string) error {
	_, err := s.secure.RemoveSecure(storage.KeyUserKeySession.Format(accountID))
	return err
}
