package storage

import (
	"fmt"

	"github.com/keywarden/keywarden/internal/crypto"
)

// ProtectedPrefix marks a storage key whose value is a base64 envelope.
// A plain Get or Set on a protected key passes the ciphertext through
// untouched; the Secure variants below perform the envelope handling.
const ProtectedPrefix = "__PROTECTED__"

// SecureStore wraps a Store with transparent envelope encryption keyed by
// a caller-supplied session key.
type SecureStore struct {
	store *Store
}

// NewSecureStore wraps store.
func NewSecureStore(store *Store) *SecureStore {
	return &SecureStore{store: store}
}

// SetSecure seals plaintext under key's protected name.
func (s *SecureStore) SetSecure(key string, plaintext []byte, sessionKey *crypto.SymmetricKey) error {
	env, err := sessionKey.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("protect %q: %w", key, err)
	}
	return s.store.Set(ProtectedPrefix+key, env)
}

// GetSecure opens the envelope stored under key's protected name. A missing
// key returns (nil, false, nil).
func (s *SecureStore) GetSecure(key string, sessionKey *crypto.SymmetricKey) ([]byte, bool, error) {
	var env string
	ok, err := s.store.Get(ProtectedPrefix+key, &env)
	if err != nil || !ok {
		return nil, false, err
	}
	plaintext, err := sessionKey.Decrypt(env)
	if err != nil {
		return nil, false, fmt.Errorf("unprotect %q: %w", key, err)
	}
	return plaintext, true, nil
}

// RemoveSecure deletes the protected entry, reporting whether it existed.
func (s *SecureStore) RemoveSecure(key string) (bool, error) {
	return s.store.Remove(ProtectedPrefix + key)
}
