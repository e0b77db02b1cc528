package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the standard AES-GCM nonce length in bytes.
	IVSize = 12
)

var (
	ErrInvalidKeySize = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrInvalidIVSize  = errors.New("invalid iv size: must be 12 bytes")
	// ErrAuthenticationTag is returned when GCM authentication fails: the
	// ciphertext was altered or the key/iv pair does not match.
	ErrAuthenticationTag = errors.New("authentication tag mismatch")
)

// Encrypt seals plaintext with AES-256-GCM under key and iv.
// The returned ciphertext carries the 16-byte tag appended, matching the
// WebCrypto layout used by clients.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens AES-256-GCM ciphertext produced by Encrypt.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrAuthenticationTag
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationTag
	}
	return plaintext, nil
}

func newGCM(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIVSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateKey generates a random 256-bit (32-byte) key for AES-256
func GenerateKey() ([]byte, error) {
	return randomBytes(KeySize)
}

// GenerateIV generates a random 96-bit nonce.
func GenerateIV() ([]byte, error) {
	return randomBytes(IVSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
