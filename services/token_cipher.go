package services

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedTokenPrefix = "enc:v1:"

var ErrTokenCipherMissing = errors.New("token is sealed but no encryption key is configured")

// TokenCipher seals ClinVar API tokens before they are written to the
// database. A nil *TokenCipher stores tokens as given.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives a XChaCha20-Poly1305 key from passphrase. An empty
// passphrase yields a nil cipher.
func NewTokenCipher(passphrase string) (*TokenCipher, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, nil
	}
	key := blake2b.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

func (c *TokenCipher) Seal(token string) (string, error) {
	if c == nil || token == "" {
		return token, nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(token)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return sealedTokenPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open returns the plain token. Values stored before a key was configured
// are returned unchanged.
func (c *TokenCipher) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedTokenPrefix) {
		return stored, nil
	}
	if c == nil {
		return "", ErrTokenCipherMissing
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedTokenPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("sealed token is truncated")
	}
	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}
