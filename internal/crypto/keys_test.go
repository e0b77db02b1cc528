package crypto

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKeyFormats(t *testing.T) {
	keyA, _ := testKeys(t)

	pkcs8PEM, err := MarshalPrivateKeyPEM(keyA)
	require.NoError(t, err)

	pkcs1PEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(keyA)})

	block, _ := pem.Decode(pkcs8PEM)
	bareB64 := base64.StdEncoding.EncodeToString(block.Bytes)

	cases := map[string][]byte{
		"pkcs8 pem":       pkcs8PEM,
		"pkcs1 pem":       pkcs1PEM,
		"bare base64 der": []byte(bareB64),
		"wrapped base64":  []byte(bareB64[:64] + "\n" + bareB64[64:] + "\n"),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParsePrivateKey(input)
			require.NoError(t, err)
			assert.True(t, keyA.Equal(parsed))
		})
	}
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	keyA, _ := testKeys(t)
	pubPEM, err := MarshalPublicKeyPEM(&keyA.PublicKey)
	require.NoError(t, err)

	for name, input := range map[string][]byte{
		"empty":      nil,
		"public key": pubPEM,
		"text":       []byte("definitely not a key"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePrivateKey(input)
			assert.ErrorIs(t, err, ErrInvalidPrivateKey)
		})
	}
}

func TestGenerateRSAKeyMinimumSize(t *testing.T) {
	_, err := GenerateRSAKey(1024)
	assert.Error(t, err)
}
