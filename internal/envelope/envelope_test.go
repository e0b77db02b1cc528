package envelope

import (
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/models"
	"chat-escrow/internal/testutil"
)

func TestRequiresDecryption(t *testing.T) {
	keys := testutil.EscrowKeys(t, 1)

	textOnly := testutil.Seal(t, testutil.SealOptions{ID: "a", Text: "hi", EscrowKey: &keys[0].PublicKey})
	assert.True(t, RequiresDecryption(textOnly.Message))

	mediaOnly := testutil.Seal(t, testutil.SealOptions{ID: "b", MediaPath: "u/1.jpg.enc", Media: []byte{1}, EscrowKey: &keys[0].PublicKey})
	assert.True(t, RequiresDecryption(mediaOnly.Message))

	empty := &models.Message{ID: "c", Version: models.VersionEncrypted}
	assert.False(t, RequiresDecryption(empty))

	legacy := testutil.Plain("d", "hello")
	legacy.MediaPath = testutil.Ptr("u/1.jpg")
	assert.False(t, RequiresDecryption(legacy))
}

func TestResolveEscrowKey(t *testing.T) {
	keys := testutil.EscrowKeys(t, 2)
	rotated := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k2": keys[1]}, keys[0])

	key, err := ResolveEscrowKey("k2", rotated)
	require.NoError(t, err)
	assert.Same(t, keys[1], key)

	key, err = ResolveEscrowKey("k-unknown", rotated)
	require.NoError(t, err)
	assert.Same(t, keys[0], key, "unknown id falls back to legacy key")

	key, err = ResolveEscrowKey("", rotated)
	require.NoError(t, err)
	assert.Same(t, keys[0], key)

	idOnly := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k2": keys[1]}, nil)
	_, err = ResolveEscrowKey("k1", idOnly)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.ErrorIs(t, err, crypto.ErrKeyNotConfigured)

	_, err = ResolveEscrowKey("k1", nil)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestOpenerTextAndMediaShareKey(t *testing.T) {
	keys := testutil.EscrowKeys(t, 1)
	store := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k1": keys[0]}, nil)
	sealed := testutil.Seal(t, testutil.SealOptions{
		ID: "m1", Text: "see attached", KeyID: "k1",
		MediaPath: "u/photo.jpg.enc", Media: []byte("jpeg-bytes"), MediaType: models.MediaTypeImage,
		EscrowKey: &keys[0].PublicKey,
	})

	opener := NewOpener(sealed.Message, store)
	assert.False(t, opener.Unwrapped())

	text, err := opener.OpenText()
	require.NoError(t, err)
	assert.Equal(t, "see attached", text)
	assert.True(t, opener.Unwrapped())

	media, err := opener.OpenMedia(sealed.EncryptedMedia)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), media)
}

func TestOpenerWrongEscrowKeyIsCryptoError(t *testing.T) {
	keys := testutil.EscrowKeys(t, 2)
	sealed := testutil.Seal(t, testutil.SealOptions{ID: "m1", Text: "secret", KeyID: "k1", EscrowKey: &keys[0].PublicKey})
	wrongStore := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k1": keys[1]}, nil)

	text, err := NewOpener(sealed.Message, wrongStore).OpenText()
	assert.Empty(t, text)
	assert.True(t, apperr.Is(err, apperr.KindCrypto))
	assert.ErrorIs(t, err, crypto.ErrKeyUnwrap)
}

func TestOpenerTamperedMedia(t *testing.T) {
	keys := testutil.EscrowKeys(t, 1)
	store := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k1": keys[0]}, nil)
	sealed := testutil.Seal(t, testutil.SealOptions{ID: "m1", KeyID: "k1", MediaPath: "x.enc", Media: []byte("video"), EscrowKey: &keys[0].PublicKey})

	blob := append([]byte(nil), sealed.EncryptedMedia...)
	blob[len(blob)-1] ^= 0x01
	_, err := NewOpener(sealed.Message, store).OpenMedia(blob)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationTag)
}

func TestValidate(t *testing.T) {
	keys := testutil.EscrowKeys(t, 1)
	sealed := testutil.Seal(t, testutil.SealOptions{ID: "m1", Text: "x", EscrowKey: &keys[0].PublicKey})
	require.NoError(t, Validate(sealed.Message))

	noIV := *sealed.Message
	noIV.EncryptionIV = nil
	assert.True(t, apperr.Is(Validate(&noIV), apperr.KindBadRequest))

	noEnvelope := *sealed.Message
	noEnvelope.KeysMetadata = nil
	assert.True(t, apperr.Is(Validate(&noEnvelope), apperr.KindBadRequest))

	_, err := NewOpener(&noEnvelope, crypto.NewKeyManager(nil, keys[0])).OpenText()
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}
