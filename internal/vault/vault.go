package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrNoSecret is returned when no encryption secret is configured. There
	// is no fallback to an unencrypted mode.
	ErrNoSecret = errors.New("vault: encryption secret is not configured")

	// ErrIntegrity is returned when a ciphertext is tampered with, truncated,
	// or otherwise not decryptable.
	ErrIntegrity = errors.New("vault: ciphertext integrity check failed")
)

// keySalt is a fixed application salt for the scrypt derivation. The derived
// key protects credentials at rest; the secret itself comes from the operator.
var keySalt = []byte("omnichat-gateway-credential-vault")

// Vault encrypts and decrypts provider credentials with AES-256-GCM.
// The stored form is base64(nonce || ciphertext || tag), so two encryptions of
// the same plaintext never produce the same blob.
type Vault struct {
	aead cipher.AEAD
}

// New derives the symmetric key from the operator secret via scrypt and
// prepares the AEAD. It fails when the secret is empty.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	key, err := scrypt.Key([]byte(secret), keySalt, 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any corruption yields ErrIntegrity;
// partial plaintext is never returned.
func (v *Vault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrIntegrity
	}
	if len(raw) < v.aead.NonceSize()+v.aead.Overhead() {
		return "", ErrIntegrity
	}

	nonce, ciphertext := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

// LooksEncrypted reports whether blob is structurally a vault ciphertext. It is
// a shape check only; Decrypt is the authority.
func (v *Vault) LooksEncrypted(blob string) bool {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return false
	}
	return len(raw) >= v.aead.NonceSize()+v.aead.Overhead()
}
