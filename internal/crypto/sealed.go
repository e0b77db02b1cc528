package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	sealPrefix      = "argon2id"
	sealSaltSize    = 16
	sealTime        = 1
	sealMemory      = 64 * 1024
	sealParallelism = 4
)

var ErrSealedKeyFormat = errors.New("invalid sealed key format")

// SealPrivateKey encrypts a private key file for storage at rest.
// Output format: argon2id$<salt>$<nonce>$<ciphertext>, all base64.
func SealPrivateKey(keyPEM []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase is required to seal a key")
	}
	salt, err := randomBytes(sealSaltSize)
	if err != nil {
		return "", err
	}
	nonce, err := GenerateIV()
	if err != nil {
		return "", err
	}

	ciphertext, err := Encrypt(keyPEM, deriveSealKey(passphrase, salt), nonce)
	if err != nil {
		return "", fmt.Errorf("failed to seal key: %w", err)
	}

	enc := base64.StdEncoding
	return strings.Join([]string{
		sealPrefix,
		enc.EncodeToString(salt),
		enc.EncodeToString(nonce),
		enc.EncodeToString(ciphertext),
	}, "$"), nil
}

// UnsealPrivateKey reverses SealPrivateKey. A wrong passphrase surfaces as
// ErrAuthenticationTag.
func UnsealPrivateKey(sealed, passphrase string) ([]byte, error) {
	parts := strings.Split(strings.TrimSpace(sealed), "$")
	if len(parts) != 4 || parts[0] != sealPrefix {
		return nil, ErrSealedKeyFormat
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, ErrSealedKeyFormat
	}
	nonce, err := enc.DecodeString(parts[2])
	if err != nil {
		return nil, ErrSealedKeyFormat
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil {
		return nil, ErrSealedKeyFormat
	}

	return Decrypt(ciphertext, deriveSealKey(passphrase, salt), nonce)
}

func deriveSealKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, sealTime, sealMemory, sealParallelism, KeySize)
}
