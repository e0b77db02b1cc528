package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const (
	pkcs8PEMType = "PRIVATE KEY"
	pkcs1PEMType = "RSA PRIVATE KEY"
	spkiPEMType  = "PUBLIC KEY"
)

var ErrInvalidPrivateKey = errors.New("invalid RSA private key")

// GenerateRSAKey creates a new escrow keypair.
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("RSA key size %d is too small", bits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// ParsePrivateKey accepts a PEM block (PKCS#8 or PKCS#1) or bare base64
// PKCS#8/PKCS#1 DER, as exported by browser and CLI tooling.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrInvalidPrivateKey
	}

	var der []byte
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != pkcs8PEMType && block.Type != pkcs1PEMType {
			return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPrivateKey, block.Type)
		}
		der = block.Bytes
	} else {
		compact := strings.Join(strings.Fields(string(data)), "")
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("%w: not PEM and not base64", ErrInvalidPrivateKey)
		}
		der = decoded
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PKCS#8 key is not RSA", ErrInvalidPrivateKey)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// MarshalPrivateKeyPEM encodes priv as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pkcs8PEMType, Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes pub as an SPKI PEM block, the format clients
// import to wrap message keys for escrow.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: spkiPEMType, Bytes: der}), nil
}
