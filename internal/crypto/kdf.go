package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KdfType selects the key derivation function used for the master key.
type KdfType int

const (
	// KdfPBKDF2SHA256 derives with PBKDF2 over HMAC-SHA256.
	KdfPBKDF2SHA256 KdfType = 0
	// KdfArgon2id derives with the memory-hard Argon2id function.
	KdfArgon2id KdfType = 1
)

// Default cost parameters applied when the server leaves them unset.
const (
	DefaultPBKDF2Iterations  = 600000
	DefaultArgon2Iterations  = 3
	DefaultArgon2MemoryMiB   = 64
	DefaultArgon2Parallelism = 4

	masterKeySize          = 32
	stretchedKeyInfoCipher = "enc"
	stretchedKeyInfoMac    = "mac"
)

// KdfConfig carries the derivation parameters delivered by prelogin and
// persisted per account for offline unlock.
type KdfConfig struct {
	Type        KdfType `json:"kdfType"`
	Iterations  uint32  `json:"iterations"`
	Memory      uint32  `json:"memory,omitempty"`      // MiB, Argon2id only
	Parallelism uint32  `json:"parallelism,omitempty"` // Argon2id only
}

// DefaultPBKDF2Config returns the PBKDF2 configuration used when the server
// does not specify parameters.
func DefaultPBKDF2Config() KdfConfig {
	return KdfConfig{Type: KdfPBKDF2SHA256, Iterations: DefaultPBKDF2Iterations}
}

// DefaultArgon2idConfig returns the Argon2id configuration used when the
// server does not specify parameters.
func DefaultArgon2idConfig() KdfConfig {
	return KdfConfig{
		Type:        KdfArgon2id,
		Iterations:  DefaultArgon2Iterations,
		Memory:      DefaultArgon2MemoryMiB,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Validate checks that every cost parameter required by the KDF type is
// strictly positive.
func (c KdfConfig) Validate() error {
	switch c.Type {
	case KdfPBKDF2SHA256:
		if c.Iterations == 0 {
			return fmt.Errorf("%w: pbkdf2 iterations must be positive", ErrInvalidKDFConfig)
		}
	case KdfArgon2id:
		if c.Iterations == 0 || c.Memory == 0 || c.Parallelism == 0 {
			return fmt.Errorf("%w: argon2id iterations, memory and parallelism must be positive", ErrInvalidKDFConfig)
		}
	default:
		return fmt.Errorf("%w: unknown kdf type %d", ErrInvalidKDFConfig, c.Type)
	}
	return nil
}

// HashPurpose distinguishes the contexts a master-key hash is produced for.
// The purpose doubles as the iteration count of the final hashing pass so
// the two hashes can never collide.
type HashPurpose int

const (
	// HashPurposeServerAuthorization produces the hash sent to the identity
	// service during a password grant.
	HashPurposeServerAuthorization HashPurpose = 1
	// HashPurposeLocalAuthorization produces a hash usable for local
	// password verification without contacting the server.
	HashPurposeLocalAuthorization HashPurpose = 2
)

// MasterKey is the ephemeral key derived from the master password and the
// account identifier. It decrypts and encrypts the user key and is wiped as
// soon as the caller is done with it.
type MasterKey struct {
	key [masterKeySize]byte
}

// DeriveMasterKey runs the configured KDF over the password, salted with
// the normalized account identifier. The identifier is trimmed and
// lowercased before use so the derivation is stable across logins.
func DeriveMasterKey(password []byte, identifier string, cfg KdfConfig) (*MasterKey, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	salt := []byte(strings.ToLower(strings.TrimSpace(identifier)))

	var raw []byte
	switch cfg.Type {
	case KdfPBKDF2SHA256:
		raw = pbkdf2.Key(password, salt, int(cfg.Iterations), masterKeySize, sha256.New)
	case KdfArgon2id:
		// Argon2id salts with the digest of the identifier, not the
		// identifier itself.
		sum := sha256.Sum256(salt)
		raw = argon2.IDKey(password, sum[:], cfg.Iterations, cfg.Memory*1024, uint8(cfg.Parallelism), masterKeySize)
	default:
		return nil, fmt.Errorf("%w: unknown kdf type %d", ErrInvalidKDFConfig, cfg.Type)
	}

	m := &MasterKey{}
	copy(m.key[:], raw)
	memguard.WipeBytes(raw)
	return m, nil
}

// HashAuthentication produces the base64 authentication hash for the given
// purpose: one further PBKDF2 pass keyed by the master key over the
// password.
func (m *MasterKey) HashAuthentication(password []byte, purpose HashPurpose) string {
	hash := pbkdf2.Key(m.key[:], password, int(purpose), masterKeySize, sha256.New)
	defer memguard.WipeBytes(hash)
	return base64.StdEncoding.EncodeToString(hash)
}

// Stretch expands the 32-byte master key into a 64-byte symmetric key via
// HKDF-SHA256, so the master key can open and seal user-key envelopes.
func (m *MasterKey) Stretch() (*SymmetricKey, error) {
	raw := make([]byte, SymmetricKeySize)
	encReader := hkdf.Expand(sha256.New, m.key[:], []byte(stretchedKeyInfoCipher))
	if _, err := io.ReadFull(encReader, raw[:32]); err != nil {
		return nil, fmt.Errorf("stretch master key: %w", err)
	}
	macReader := hkdf.Expand(sha256.New, m.key[:], []byte(stretchedKeyInfoMac))
	if _, err := io.ReadFull(macReader, raw[32:]); err != nil {
		return nil, fmt.Errorf("stretch master key: %w", err)
	}
	return NewSymmetricKey(raw)
}

// Destroy wipes the master key in place.
func (m *MasterKey) Destroy() {
	if m == nil {
		return
	}
	memguard.WipeBytes(m.key[:])
}
