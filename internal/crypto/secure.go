package crypto

import (
	"github.com/awnumar/memguard"
)

// SecureKey keeps a symmetric key sealed in a memguard enclave between
// uses. The plaintext only exists in locked memory while a caller holds it
// open.
type SecureKey struct {
	enclave *memguard.Enclave
}

// NewSecureKey seals the key into an enclave and destroys the source.
func NewSecureKey(k *SymmetricKey) *SecureKey {
	if k == nil {
		return nil
	}
	raw := k.Bytes()
	k.Destroy()
	// NewBufferFromBytes wipes raw.
	buf := memguard.NewBufferFromBytes(raw)
	return &SecureKey{enclave: buf.Seal()}
}

// Open reconstitutes the symmetric key from the enclave. The caller owns
// the returned key and must Destroy it after use.
func (s *SecureKey) Open() (*SymmetricKey, error) {
	if s == nil || s.enclave == nil {
		return nil, ErrKeyDestroyed
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	raw := make([]byte, SymmetricKeySize)
	copy(raw, buf.Bytes())
	return NewSymmetricKey(raw)
}

// Destroy releases the enclave.
func (s *SecureKey) Destroy() {
	if s != nil {
		s.enclave = nil
	}
}

// IsDestroyed reports whether the enclave has been released.
func (s *SecureKey) IsDestroyed() bool {
	return s == nil || s.enclave == nil
}
