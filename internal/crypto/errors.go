package crypto

import "errors"

// Key errors indicate malformed or unusable key material.
var (
	// ErrInvalidSessionKey indicates the session key text is not valid
	// base64 or does not decode to exactly 64 bytes.
	ErrInvalidSessionKey = errors.New("invalid session key")

	// ErrInvalidKeyLength indicates raw key material has an unexpected length.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrKeyDestroyed indicates an operation was attempted on a key that
	// has already been wiped.
	ErrKeyDestroyed = errors.New("key has been destroyed")
)

// Envelope errors indicate encryption or decryption failures.
var (
	// ErrEncryptFailed indicates a value could not be sealed.
	ErrEncryptFailed = errors.New("encryption failed")

	// ErrDecryptFailed indicates an envelope could not be opened. It covers
	// both malformed envelopes and authentication failures so that the two
	// cases are indistinguishable to a caller.
	ErrDecryptFailed = errors.New("decryption failed")
)

// KDF errors indicate unusable derivation parameters.
var (
	// ErrInvalidKDFConfig indicates a KDF parameter is zero or the KDF type
	// is unknown.
	ErrInvalidKDFConfig = errors.New("invalid kdf configuration")
)
