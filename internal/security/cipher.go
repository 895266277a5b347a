package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters for the JSON blob cipher.
const (
	pbkdf2Iterations = 100000
	derivedKeyLength = chacha20poly1305.KeySize
)

// CiphertextPrefix marks values written by JSONCipher.
const CiphertextPrefix = "po1:"

// Cipher errors.
var (
	// ErrMissingKeyMaterial indicates an empty key or salt.
	ErrMissingKeyMaterial = errors.New("encryption key and salt are required")
	// ErrNotCiphertext indicates a value without the ciphertext prefix.
	ErrNotCiphertext = errors.New("value is not ciphertext")
	// ErrDecrypt indicates a prefixed value that failed authentication or decoding.
	ErrDecrypt = errors.New("decrypt failed")
)

// JSONCipher encrypts serialized JSON blobs with a key derived from a secret and salt.
type JSONCipher struct {
	aead cipher.AEAD
}

// NewJSONCipher derives the key with PBKDF2-SHA256 and builds an XChaCha20-Poly1305 AEAD.
func NewJSONCipher(secret, salt string) (*JSONCipher, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(salt) == "" {
		return nil, ErrMissingKeyMaterial
	}
	key := pbkdf2.Key([]byte(secret), []byte(salt), pbkdf2Iterations, derivedKeyLength, sha256.New)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("security: init cipher: %w", err)
	}
	return &JSONCipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns the prefixed base64url form.
func (c *JSONCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return CiphertextPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
// It returns ErrNotCiphertext for unprefixed values and ErrDecrypt for anything that fails to open.
func (c *JSONCipher) Decrypt(value string) ([]byte, error) {
	if !IsCiphertext(value) {
		return nil, ErrNotCiphertext
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, CiphertextPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// IsCiphertext reports whether value carries the ciphertext prefix.
func IsCiphertext(value string) bool {
	return strings.HasPrefix(value, CiphertextPrefix)
}
