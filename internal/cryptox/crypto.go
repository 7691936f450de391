// Package cryptox implements the optional at-rest/in-transit field encryption
// used by the sync engine: AES-256-GCM over individual text fields, with keys
// derived from a passphrase by argon2id.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length produced by DeriveKey.
const KeySize = 32

// SaltSize is the length of salts produced by NewSalt.
const SaltSize = 16

// ErrKeyUnavailable is returned by Encrypt when no key has been installed.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// DeriveKey stretches a passphrase into a KeySize key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier returns a value that confirms a derived key without revealing it.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// FieldCipher encrypts and decrypts single text values.
//
// Ciphertext is base64(nonce || AES-GCM sealed box). Historical data mixes
// plaintext and ciphertext, so Decrypt never fails: a value that does not
// open under the current key is reported as "not ciphertext" and returned as is.
//
// The key may be installed or removed at any time; FieldCipher is safe for
// concurrent use.
type FieldCipher struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

// NewFieldCipher builds a cipher. A nil or empty key yields a cipher whose
// KeyAvailable reports false.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	c := &FieldCipher{}
	if len(key) == 0 {
		return c, nil
	}
	if err := c.SetKey(key); err != nil {
		return nil, err
	}
	return c, nil
}

// SetKey installs key (16, 24 or 32 bytes).
func (c *FieldCipher) SetKey(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("new gcm: %w", err)
	}

	c.mu.Lock()
	c.aead = aead
	c.mu.Unlock()
	return nil
}

// ClearKey forgets the installed key.
func (c *FieldCipher) ClearKey() {
	c.mu.Lock()
	c.aead = nil
	c.mu.Unlock()
}

// KeyAvailable reports whether a key is installed.
func (c *FieldCipher) KeyAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aead != nil
}

// Encrypt seals text with a fresh random nonce. The empty string stays empty.
func (c *FieldCipher) Encrypt(text string) (string, error) {
	if text == "" {
		return "", nil
	}

	c.mu.RLock()
	aead := c.aead
	c.mu.RUnlock()
	if aead == nil {
		return "", ErrKeyUnavailable
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(text), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens text if it is ciphertext under the current key. The boolean
// reports whether decryption happened; when false the input is returned unchanged.
func (c *FieldCipher) Decrypt(text string) (string, bool) {
	c.mu.RLock()
	aead := c.aead
	c.mu.RUnlock()
	if aead == nil || text == "" {
		return text, false
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return text, false
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return text, false
	}
	return string(plain), true
}
