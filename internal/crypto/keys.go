// Package crypto implements the key material and envelope encryption used
// to protect values at rest: session keys, master key derivation, and the
// versioned ciphertext+MAC envelope format.
package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/awnumar/memguard"
)

// SymmetricKeySize is the raw size of a SymmetricKey: a 32-byte cipher key
// followed by a 32-byte MAC key.
const SymmetricKeySize = 64

// SymmetricKey is a paired AES-256 cipher key and HMAC-SHA256 key. Both the
// session key and the user key are symmetric keys; they differ only in how
// they are produced and where their envelopes live.
type SymmetricKey struct {
	enc       [32]byte
	mac       [32]byte
	destroyed bool
}

// NewSymmetricKey builds a key from 64 raw bytes and wipes the input.
func NewSymmetricKey(raw []byte) (*SymmetricKey, error) {
	if len(raw) != SymmetricKeySize {
		return nil, ErrInvalidKeyLength
	}
	k := &SymmetricKey{}
	copy(k.enc[:], raw[:32])
	copy(k.mac[:], raw[32:])
	memguard.WipeBytes(raw)
	return k, nil
}

// GenerateSessionKey returns a fresh random symmetric key for use as a
// session key. The key is never persisted; the caller exports it as base64
// text and wipes it when done.
func GenerateSessionKey() (*SymmetricKey, error) {
	raw := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return NewSymmetricKey(raw)
}

// SessionKeyFromBase64 parses an exported session key. Any input that does
// not decode to exactly 64 bytes is rejected.
func SessionKeyFromBase64(s string) (*SymmetricKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSessionKey
	}
	if len(raw) != SymmetricKeySize {
		memguard.WipeBytes(raw)
		return nil, ErrInvalidSessionKey
	}
	return NewSymmetricKey(raw)
}

// ToBase64 exports the key as base64 text for the out-of-band session
// channel.
func (k *SymmetricKey) ToBase64() string {
	raw := k.Bytes()
	defer memguard.WipeBytes(raw)
	return base64.StdEncoding.EncodeToString(raw)
}

// Bytes returns a fresh copy of the raw 64 bytes. The caller owns the copy
// and must wipe it.
func (k *SymmetricKey) Bytes() []byte {
	raw := make([]byte, 0, SymmetricKeySize)
	raw = append(raw, k.enc[:]...)
	raw = append(raw, k.mac[:]...)
	return raw
}

// Destroy wipes the key material in place. The key must not be used after.
func (k *SymmetricKey) Destroy() {
	if k == nil {
		return
	}
	memguard.WipeBytes(k.enc[:])
	memguard.WipeBytes(k.mac[:])
	k.destroyed = true
}
