package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrKeyUnwrap is returned for every unwrap failure. Malformed base64, a
// foreign private key and a bad key length are deliberately indistinguishable.
var ErrKeyUnwrap = errors.New("failed to unwrap key")

// WrapKey encrypts a raw symmetric key under pub with RSA-OAEP/SHA-256 and
// returns it base64-encoded.
func WrapKey(rawKey []byte, pub *rsa.PublicKey) (string, error) {
	if len(rawKey) != KeySize {
		return "", ErrInvalidKeySize
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, rawKey, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(wrappedKeyB64 string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrKeyUnwrap
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedKeyB64)
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	raw, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	if len(raw) != KeySize {
		return nil, ErrKeyUnwrap
	}
	return raw, nil
}
