// Package cipher reversibly encrypts account credentials with a
// process-wide symmetric key loaded at startup. Key rotation is out of
// scope: existing ciphertexts become unreadable if ENCRYPTION_KEY
// changes, which is the documented operator contract.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when a ciphertext cannot be opened with the
// current key — a corrupt blob, or a key that has rotated (Fatal kind,
// per the spec's error taxonomy, surfaced by callers as such).
var ErrDecrypt = errors.New("cipher: decryption failed")

// Cipher seals and opens account credentials with ChaCha20-Poly1305 AEAD.
type Cipher struct {
	aead chacha20poly1305.AEAD
}

// New derives a 32-byte key from the raw ENCRYPTION_KEY string via
// SHA-256 so operators can supply a passphrase of any length, and
// constructs the AEAD. Returns an error (fatal at boot) if the key is
// empty or the AEAD cannot be constructed.
func New(rawKey string) (*Cipher, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("cipher: ENCRYPTION_KEY is required")
	}
	sum := sha256.Sum256([]byte(rawKey))
	aead, err := chacha20poly1305.New(sum[:])
	if err != nil {
		return nil, fmt.Errorf("cipher: construct aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce, prepended to the
// returned ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cipher: read nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Returns ErrDecrypt on
// any failure (truncated input, wrong key, tampered bytes) without
// leaking the underlying AEAD error, which may reflect timing of the
// tag comparison.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrDecrypt
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Fingerprint returns a short, non-reversible hex digest of a secret
// suitable for logging (never the secret itself), mirroring the
// teacher's sl.Secret redaction idiom at the cipher layer.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:8]
}
