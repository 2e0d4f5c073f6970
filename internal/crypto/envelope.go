package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
)

// Envelope wire format: "<version>.<b64 iv>|<b64 ciphertext>|<b64 mac>".
// The ciphertext is AES-256-CBC over PKCS#7-padded plaintext and the MAC is
// HMAC-SHA256 over iv||ciphertext, verified before any decryption output is
// produced.
const (
	envelopeVersion = "2"
	envelopeIVSize  = aes.BlockSize
	envelopeMacSize = sha256.Size
)

// Encrypt seals plaintext into an envelope under the key. The plaintext may
// be empty; a full padding block is emitted for it.
func (k *SymmetricKey) Encrypt(plaintext []byte) (string, error) {
	if k == nil || k.destroyed {
		return "", ErrKeyDestroyed
	}

	block, err := aes.NewCipher(k.enc[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	iv := make([]byte, envelopeIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer memguard.WipeBytes(padded)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	mac := computeMac(k.mac[:], iv, ct)

	return envelopeVersion + "." +
		base64.StdEncoding.EncodeToString(iv) + "|" +
		base64.StdEncoding.EncodeToString(ct) + "|" +
		base64.StdEncoding.EncodeToString(mac), nil
}

// Decrypt opens an envelope produced by Encrypt. Malformed input and MAC
// mismatches both return ErrDecryptFailed so a caller cannot distinguish
// the two.
func (k *SymmetricKey) Decrypt(envelope string) ([]byte, error) {
	if k == nil || k.destroyed {
		return nil, ErrKeyDestroyed
	}

	iv, ct, mac, ok := parseEnvelope(envelope)
	if !ok {
		return nil, ErrDecryptFailed
	}

	expected := computeMac(k.mac[:], iv, ct)
	if !hmac.Equal(expected, mac) {
		return nil, ErrDecryptFailed
	}

	block, err := aes.NewCipher(k.enc[:])
	if err != nil {
		return nil, ErrDecryptFailed
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	unpadded, ok := pkcs7Unpad(pt, aes.BlockSize)
	if !ok {
		memguard.WipeBytes(pt)
		return nil, ErrDecryptFailed
	}
	return unpadded, nil
}

// EncryptKey seals another symmetric key's raw 64 bytes. Used to wrap the
// user key under the session key or the stretched master key.
func (k *SymmetricKey) EncryptKey(other *SymmetricKey) (string, error) {
	raw := other.Bytes()
	defer memguard.WipeBytes(raw)
	return k.Encrypt(raw)
}

// DecryptKey opens an envelope holding raw key material and reconstitutes
// it directly into a symmetric key, without any re-derivation.
func (k *SymmetricKey) DecryptKey(envelope string) (*SymmetricKey, error) {
	raw, err := k.Decrypt(envelope)
	if err != nil {
		return nil, err
	}
	key, err := NewSymmetricKey(raw)
	if err != nil {
		memguard.WipeBytes(raw)
		return nil, ErrDecryptFailed
	}
	return key, nil
}

func parseEnvelope(s string) (iv, ct, mac []byte, ok bool) {
	version, rest, found := strings.Cut(s, ".")
	if !found || version != envelopeVersion {
		return nil, nil, nil, false
	}
	parts := strings.Split(rest, "|")
	if len(parts) != 3 {
		return nil, nil, nil, false
	}

	var err error
	if iv, err = base64.StdEncoding.DecodeString(parts[0]); err != nil || len(iv) != envelopeIVSize {
		return nil, nil, nil, false
	}
	if ct, err = base64.StdEncoding.DecodeString(parts[1]); err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, nil, nil, false
	}
	if mac, err = base64.StdEncoding.DecodeString(parts[2]); err != nil || len(mac) != envelopeMacSize {
		return nil, nil, nil, false
	}
	return iv, ct, mac, true
}

func computeMac(macKey, iv, ct []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(iv)
	h.Write(ct)
	return h.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
