// Package crypto wraps password hashing and symmetric sealing of stored secrets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const maxPasswordBytes = 72

var (
	// ErrPasswordTooLong is returned for passwords bcrypt would silently truncate.
	ErrPasswordTooLong = errors.New("crypto: password exceeds 72 bytes")
	// ErrUnsealable is returned when a ciphertext fails authentication.
	ErrUnsealable = errors.New("crypto: ciphertext cannot be opened")
)

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hashedPassword.
func VerifyPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// Sealer encrypts short secrets with AES-GCM. Each ciphertext is bound to an
// owner string, so a value copied onto another row will not open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer; the key length (16, 24 or 32) selects the AES variant.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext) for plaintext owned by owner.
func (s *Sealer) Seal(plaintext, owner string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. A wrong key or owner yields ErrUnsealable.
func (s *Sealer) Open(ciphertext, owner string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return "", ErrUnsealable
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(owner))
	if err != nil {
		return "", ErrUnsealable
	}
	return string(plain), nil
}

// GenerateToken returns length random bytes encoded as unpadded URL-safe base64.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
