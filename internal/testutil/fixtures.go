// Package testutil builds encrypted message fixtures the way sending clients do.
package testutil

import (
	"crypto/rsa"
	"encoding/base64"
	"sync"
	"testing"

	"chat-escrow/internal/crypto"
	"chat-escrow/internal/models"
)

var (
	keysOnce sync.Once
	keys     []*rsa.PrivateKey
	keysErr  error
)

// EscrowKeys returns n shared RSA keys (n <= 3), generated once per test binary.
func EscrowKeys(t testing.TB, n int) []*rsa.PrivateKey {
	t.Helper()
	keysOnce.Do(func() {
		for i := 0; i < 3; i++ {
			key, err := crypto.GenerateRSAKey(2048)
			if err != nil {
				keysErr = err
				return
			}
			keys = append(keys, key)
		}
	})
	if keysErr != nil {
		t.Fatalf("generate escrow keys: %v", keysErr)
	}
	if n > len(keys) {
		t.Fatalf("at most %d escrow keys available", len(keys))
	}
	return keys[:n]
}

// Sealed is an encrypted message plus the plaintext used to build it.
type Sealed struct {
	Message        *models.Message
	Key            []byte
	EncryptedMedia []byte
}

// SealOptions describes the message to encrypt.
type SealOptions struct {
	ID        string
	Text      string
	Media     []byte
	MediaPath string
	MediaType string
	KeyID     string
	EscrowKey *rsa.PublicKey
}

// Seal encrypts text and media with one fresh key and one IV, wrapping the
// key for the escrow public key, exactly as the chat client does.
func Seal(t testing.TB, opts SealOptions) Sealed {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	iv, err := crypto.GenerateIV()
	if err != nil {
		t.Fatalf("generate iv: %v", err)
	}
	wrapped, err := crypto.WrapKey(key, opts.EscrowKey)
	if err != nil {
		t.Fatalf("wrap key: %v", err)
	}

	ivB64 := base64.StdEncoding.EncodeToString(iv)
	msg := &models.Message{
		ID:           opts.ID,
		Version:      models.VersionEncrypted,
		EncryptionIV: &ivB64,
		KeysMetadata: &models.KeyEnvelope{
			SenderWrappedKey: wrapped,
			PendingRecipient: true,
			AdminWrappedKey:  wrapped,
			AdminKeyID:       opts.KeyID,
			Algorithm:        "AES-GCM",
			KeyWrapAlgorithm: "RSA-OAEP-256",
		},
	}

	if opts.Text != "" {
		ciphertext, err := crypto.Encrypt([]byte(opts.Text), key, iv)
		if err != nil {
			t.Fatalf("encrypt text: %v", err)
		}
		encoded := base64.StdEncoding.EncodeToString(ciphertext)
		msg.EncryptedContent = &encoded
	}

	sealed := Sealed{Message: msg, Key: key}
	if opts.MediaPath != "" {
		path := opts.MediaPath
		msg.MediaPath = &path
		if opts.MediaType != "" {
			mediaType := opts.MediaType
			msg.MediaType = &mediaType
		}
		sealed.EncryptedMedia, err = crypto.Encrypt(opts.Media, key, iv)
		if err != nil {
			t.Fatalf("encrypt media: %v", err)
		}
	}
	return sealed
}

// Plain builds a version 1 message.
func Plain(id, text string) *models.Message {
	msg := &models.Message{ID: id, Version: models.VersionPlaintext}
	if text != "" {
		msg.Content = &text
	}
	return msg
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
