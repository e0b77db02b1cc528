// Package envelope interprets per-message escrow metadata and recovers the
// message key with the operator escrow keys.
package envelope

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/models"
)

// RequiresDecryption reports whether msg carries encrypted artifacts.
func RequiresDecryption(msg *models.Message) bool {
	return msg.Version == models.VersionEncrypted && (msg.HasEncryptedContent() || msg.HasMedia())
}

// ResolveEscrowKey looks keyID up in store, falling back to the legacy global
// key so messages escrowed before key ids existed stay readable.
func ResolveEscrowKey(keyID string, store crypto.KeyStore) (*rsa.PrivateKey, error) {
	if store == nil {
		return nil, apperr.Configuration("no escrow key store configured", crypto.ErrKeyNotConfigured)
	}
	if keyID != "" {
		key, err := store.PrivateKey(keyID)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, crypto.ErrKeyNotConfigured) {
			return nil, apperr.Configuration("failed to load escrow key "+keyID, err)
		}
	}
	if legacy, ok := store.LegacyKey(); ok {
		return legacy, nil
	}
	return nil, apperr.Configuration("no escrow key configured for key id "+keyID, crypto.ErrKeyNotConfigured)
}

// Validate checks that an encrypted message carries the metadata needed to
// decrypt it. Inconsistent rows are a client-visible error.
func Validate(msg *models.Message) error {
	if msg.KeysMetadata == nil || msg.KeysMetadata.AdminWrappedKey == "" {
		return apperr.BadRequest("Missing encryption metadata")
	}
	if msg.EncryptionIV == nil || *msg.EncryptionIV == "" {
		return apperr.BadRequest("Missing encryption IV")
	}
	return nil
}

// Opener decrypts the artifacts of one message. The escrow key is resolved
// and the message key unwrapped at most once, then reused for text and media.
// An Opener must not outlive the message it was built for.
type Opener struct {
	msg   *models.Message
	store crypto.KeyStore

	key []byte
	iv  []byte
}

// NewOpener creates an opener for msg.
func NewOpener(msg *models.Message, store crypto.KeyStore) *Opener {
	return &Opener{msg: msg, store: store}
}

// Unwrapped reports whether the message key has already been recovered.
func (o *Opener) Unwrapped() bool {
	return o.key != nil
}

func (o *Opener) materials() ([]byte, []byte, error) {
	if o.key != nil {
		return o.key, o.iv, nil
	}
	if err := Validate(o.msg); err != nil {
		return nil, nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(*o.msg.EncryptionIV)
	if err != nil {
		return nil, nil, apperr.BadRequest("Malformed encryption IV")
	}

	escrowKey, err := ResolveEscrowKey(o.msg.KeysMetadata.AdminKeyID, o.store)
	if err != nil {
		return nil, nil, err
	}

	key, err := crypto.UnwrapKey(o.msg.KeysMetadata.AdminWrappedKey, escrowKey)
	if err != nil {
		return nil, nil, apperr.Crypto("failed to unwrap message key", err)
	}

	o.key, o.iv = key, iv
	return o.key, o.iv, nil
}

// OpenText decrypts the base64 encrypted_content of the message.
func (o *Opener) OpenText() (string, error) {
	if !o.msg.HasEncryptedContent() {
		return "", apperr.BadRequest("Message has no encrypted content")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(*o.msg.EncryptedContent)
	if err != nil {
		return "", apperr.Crypto("malformed encrypted content", err)
	}

	plaintext, err := o.open(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// OpenMedia decrypts a downloaded media blob.
//
// Known risk: clients encrypt text and media with the same key and the same
// IV, so an AES-GCM nonce is reused whenever both are present. Decryption
// mirrors that layout for compatibility; deriving per-field nonces needs a
// client-side format change and security sign-off first.
func (o *Opener) OpenMedia(blob []byte) ([]byte, error) {
	return o.open(blob)
}

func (o *Opener) open(ciphertext []byte) ([]byte, error) {
	key, iv, err := o.materials()
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Decrypt(ciphertext, key, iv)
	if err != nil {
		return nil, apperr.Crypto("failed to decrypt message", err)
	}
	return plaintext, nil
}
