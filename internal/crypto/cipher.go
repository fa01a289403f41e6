package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/sitepulse/tokenvault/internal/errors"
	"github.com/sitepulse/tokenvault/internal/models"
)

// KeySize is the required master key length for AES-256-GCM.
const KeySize = 32

// Cipher performs authenticated encryption of short secret strings under a
// single process-wide master key. The key is read-only after construction;
// Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a raw 32-byte master key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, &errors.ErrInvalidKey{Length: len(key)}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromBase64 creates a Cipher from a base64-encoded master key, the
// form it takes in configuration.
func NewCipherFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return NewCipher(key)
}

// Seal encrypts plaintext with a fresh random nonce. Nonce reuse under the
// same key breaks GCM confidentiality, so the nonce is always drawn from
// crypto/rand, never derived or cached.
func (c *Cipher) Seal(plaintext string) (models.EncryptedToken, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return models.EncryptedToken{}, &errors.ErrCipherRandom{Err: err}
	}

	// Seal returns ciphertext || tag; split them so the store keeps one
	// canonical column per part.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()

	return models.EncryptedToken{
		Ciphertext: sealed[:tagStart],
		Nonce:      nonce,
		Tag:        sealed[tagStart:],
	}, nil
}

// Open decrypts an EncryptedToken. A tag verification failure is returned as
// a typed ErrAuthenticationFailed so callers can tell "credential unreadable"
// apart from "no credential"; it is never collapsed into an empty string.
func (c *Cipher) Open(token models.EncryptedToken) (string, error) {
	if len(token.Nonce) != c.aead.NonceSize() {
		return "", &errors.ErrAuthenticationFailed{
			Err: fmt.Errorf("nonce length %d, want %d", len(token.Nonce), c.aead.NonceSize()),
		}
	}

	sealed := make([]byte, 0, len(token.Ciphertext)+len(token.Tag))
	sealed = append(sealed, token.Ciphertext...)
	sealed = append(sealed, token.Tag...)

	plaintext, err := c.aead.Open(nil, token.Nonce, sealed, nil)
	if err != nil {
		return "", &errors.ErrAuthenticationFailed{Err: err}
	}
	return string(plaintext), nil
}
