package migration

import (
	"context"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-escrow/internal/crypto"
	"chat-escrow/internal/models"
	"chat-escrow/internal/storage"
	"chat-escrow/internal/testutil"
	"chat-escrow/internal/testutil/dbtest"
)

// recordingStore counts writes and can fail uploads for chosen keys.
type recordingStore struct {
	storage.Store
	uploads    int
	deletes    int
	failUpload map[string]bool
	onDownload func(key string)
}

func (s *recordingStore) Download(ctx context.Context, key string) ([]byte, error) {
	if s.onDownload != nil {
		s.onDownload(key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.Download(ctx, key)
}

func (s *recordingStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if s.failUpload[key] {
		return errors.New("upload rejected")
	}
	s.uploads++
	return s.Store.Upload(ctx, key, data, contentType)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.deletes++
	return s.Store.Delete(ctx, key)
}

type engineFixture struct {
	repos  dbtest.Repos
	blobs  *storage.BadgerStore
	store  *recordingStore
	escrow *rsa.PrivateKey
	engine *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	repos := dbtest.OpenRepos(t)
	blobs, err := storage.OpenBadgerStore("", "chat-media", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	escrow := testutil.EscrowKeys(t, 1)[0]
	store := &recordingStore{Store: blobs, failUpload: map[string]bool{}}
	keys := crypto.NewKeyManager(map[string]*rsa.PrivateKey{"k1": escrow}, nil)

	return &engineFixture{
		repos:  repos,
		blobs:  blobs,
		store:  store,
		escrow: escrow,
		engine: NewEngine(repos.Messages, store, keys, "chat-media", zap.NewNop()),
	}
}

// seed stores an encrypted message; media, when given, is uploaded under
// u/<id>.jpg.enc.
func (f *engineFixture) seed(t *testing.T, id, text string, media []byte) testutil.Sealed {
	t.Helper()
	opts := testutil.SealOptions{ID: id, Text: text, KeyID: "k1", EscrowKey: &f.escrow.PublicKey}
	if media != nil {
		opts.Media = media
		opts.MediaPath = "u/" + id + ".jpg.enc"
		opts.MediaType = models.MediaTypeImage
	}
	sealed := testutil.Seal(t, opts)
	require.NoError(t, f.repos.Messages.SaveMessage(context.Background(), sealed.Message))
	if media != nil {
		require.NoError(t, f.blobs.Upload(context.Background(), opts.MediaPath, sealed.EncryptedMedia, ""))
	}
	return sealed
}

func (f *engineFixture) message(t *testing.T, id string) *models.Message {
	t.Helper()
	msg, err := f.repos.Messages.GetMessageByID(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, ClampBatchSize(0))
	assert.Equal(t, DefaultBatchSize, ClampBatchSize(-3))
	assert.Equal(t, 7, ClampBatchSize(7))
	assert.Equal(t, MaxBatchSize, ClampBatchSize(500))
}

func TestRunMigratesTextAndMedia(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seed(t, "m1", "hello", []byte("jpeg-bytes"))
	f.seed(t, "m2", "text only", nil)
	require.NoError(t, f.repos.Messages.SaveMessage(ctx, testutil.Plain("p1", "already plain")))

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, TextDecrypted: 2, MediaDecrypted: 1, Remaining: 2}, report.Stats)
	assert.Empty(t, report.Errors)
	assert.True(t, report.Done())
	assert.Contains(t, report.Message, "Migration complete")

	m1 := f.message(t, "m1")
	assert.Equal(t, models.VersionPlaintext, m1.Version)
	assert.Equal(t, "hello", *m1.Content)
	assert.Equal(t, "u/m1.jpg", *m1.MediaPath)
	assert.Nil(t, m1.EncryptedContent)
	assert.Nil(t, m1.EncryptionIV)
	assert.Nil(t, m1.KeysMetadata)

	data, err := f.blobs.Download(ctx, "u/m1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	_, err = f.blobs.Download(ctx, "u/m1.jpg.enc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, "text only", *f.message(t, "m2").Content)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seed(t, "m1", "hello", []byte("jpeg"))

	_, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)

	second, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Total)
	assert.Equal(t, 0, second.Stats.Remaining)
	assert.Equal(t, "Migration complete. No encrypted messages remain.", second.Message)

	m1 := f.message(t, "m1")
	assert.Equal(t, models.VersionPlaintext, m1.Version)
	assert.Nil(t, m1.KeysMetadata)
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seed(t, "m1", "hello", []byte("jpeg"))
	f.seed(t, "m2", "bye", nil)

	report, err := f.engine.Run(ctx, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, Stats{Total: 2, TextDecrypted: 2, MediaDecrypted: 1, Remaining: 2}, report.Stats)
	assert.Contains(t, report.Message, "Dry run")

	assert.Zero(t, f.store.uploads)
	assert.Zero(t, f.store.deletes)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m1").Version)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m2").Version)

	_, err = f.blobs.Download(ctx, "u/m1.jpg.enc")
	assert.NoError(t, err)
}

func TestPartialFailureIsolation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.seed(t, "m1", "first", nil)
	bad := f.seed(t, "m2", "second", nil)
	f.seed(t, "m3", "third", nil)
	_, err := f.repos.DB.Exec(`UPDATE messages SET created_at = '2024-01-01 00:00:00'`)
	require.NoError(t, err)

	// corrupt the ciphertext of m2
	corrupted := "AAAA" + (*bad.Message.EncryptedContent)[4:]
	_, err = f.repos.DB.Exec(`UPDATE messages SET encrypted_content = ? WHERE id = ?`, corrupted, "m2")
	require.NoError(t, err)

	report, err := f.engine.Run(ctx, Options{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stats.Total)
	assert.Equal(t, 2, report.Stats.TextDecrypted)
	assert.Equal(t, 1, report.Stats.Errors)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "m2", report.Errors[0].ID)
	assert.False(t, report.Done())

	assert.Equal(t, models.VersionPlaintext, f.message(t, "m1").Version)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m2").Version)
	assert.Equal(t, models.VersionPlaintext, f.message(t, "m3").Version)
}

func TestUploadFailureKeepsEncryptedBlob(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seed(t, "m1", "caption", []byte("jpeg"))
	f.store.failUpload["u/m1.jpg"] = true

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Errors)
	assert.Zero(t, f.store.deletes)

	_, err = f.blobs.Download(ctx, "u/m1.jpg.enc")
	assert.NoError(t, err)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m1").Version)

	delete(f.store.failUpload, "u/m1.jpg")
	report, err = f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.Stats.Errors)
	assert.Equal(t, models.VersionPlaintext, f.message(t, "m1").Version)
}

func TestRetryAfterMediaAlreadyMoved(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seed(t, "m1", "caption", []byte("jpeg"))

	// a previous run moved the blob but never updated the row
	require.NoError(t, f.blobs.Upload(ctx, "u/m1.jpg", []byte("jpeg"), "image/jpeg"))
	require.NoError(t, f.blobs.Delete(ctx, "u/m1.jpg.enc"))

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Stats.TextDecrypted)
	assert.Equal(t, 0, report.Stats.MediaDecrypted)

	m1 := f.message(t, "m1")
	assert.Equal(t, models.VersionPlaintext, m1.Version)
	assert.Equal(t, "u/m1.jpg", *m1.MediaPath)
}

func TestMissingMediaIsItemError(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seed(t, "m1", "caption", []byte("jpeg"))
	require.NoError(t, f.blobs.Delete(ctx, "u/m1.jpg.enc"))

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m1").Version)
}

func TestBatchSizeAndContinuation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.seed(t, id, "text "+id, nil)
	}

	report, err := f.engine.Run(ctx, Options{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Total)
	assert.Equal(t, 5, report.Stats.Remaining)
	assert.False(t, report.Done())
	assert.Contains(t, report.Message, "3 encrypted messages remain")

	var batches int
	total, err := f.engine.RunUntilDone(ctx, Options{BatchSize: 2}, func(*Report) { batches++ })
	require.NoError(t, err)
	assert.Equal(t, 2, batches)
	assert.Equal(t, 3, total.Total)
	assert.Equal(t, 0, total.Remaining)

	count, err := f.repos.Messages.CountEncrypted(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunUntilDoneStopsWithoutProgress(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	broken := &models.Message{ID: "x", Version: models.VersionEncrypted, EncryptedContent: testutil.Ptr("AAAA")}
	require.NoError(t, f.repos.Messages.SaveMessage(ctx, broken))

	var batches int
	total, err := f.engine.RunUntilDone(ctx, Options{}, func(*Report) { batches++ })
	require.NoError(t, err)
	assert.Equal(t, 1, batches)
	assert.Equal(t, 1, total.Errors)
	assert.Equal(t, 1, total.Remaining)
}

func TestItemErrorsDoNotExposeFailureDetail(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	crypt := f.seed(t, "crypto", "text", nil)
	corrupted := "AAAA" + (*crypt.Message.EncryptedContent)[4:]
	_, err := f.repos.DB.Exec(`UPDATE messages SET encrypted_content = ? WHERE id = ?`, corrupted, "crypto")
	require.NoError(t, err)

	f.seed(t, "storage", "caption", []byte("jpeg"))
	require.NoError(t, f.blobs.Delete(ctx, "u/storage.jpg.enc"))

	noMeta := &models.Message{ID: "meta", Version: models.VersionEncrypted, EncryptedContent: testutil.Ptr("AAAA")}
	require.NoError(t, f.repos.Messages.SaveMessage(ctx, noMeta))

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 3)

	byID := map[string]string{}
	for _, item := range report.Errors {
		byID[item.ID] = item.Error
	}
	assert.Equal(t, "Failed to migrate message", byID["crypto"])
	assert.Equal(t, "Failed to migrate message", byID["storage"])
	assert.Equal(t, "Missing encryption metadata", byID["meta"])
}

func TestCancelledRunReturnsPartialReport(t *testing.T) {
	f := newEngineFixture(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		f.seed(t, id, "text "+id, []byte("jpeg "+id))
	}
	_, err := f.repos.DB.Exec(`UPDATE messages SET created_at = '2024-01-01 00:00:00'`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.onDownload = func(key string) {
		if key == "u/m2.jpg.enc" {
			cancel()
		}
	}

	report, err := f.engine.Run(ctx, Options{})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Interrupted)
	assert.Equal(t, Stats{Total: 1, TextDecrypted: 1, MediaDecrypted: 1, Remaining: 3}, report.Stats)
	assert.Empty(t, report.Errors)
	assert.False(t, report.Done())
	assert.Contains(t, report.Message, "interrupted")

	assert.Equal(t, models.VersionPlaintext, f.message(t, "m1").Version)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m2").Version)
	assert.Equal(t, models.VersionEncrypted, f.message(t, "m3").Version)
	_, err = f.blobs.Download(context.Background(), "u/m2.jpg.enc")
	assert.NoError(t, err)
}

func TestRunUntilDoneStopsWhenCancelled(t *testing.T) {
	f := newEngineFixture(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		f.seed(t, id, "text "+id, []byte("jpeg "+id))
	}
	_, err := f.repos.DB.Exec(`UPDATE messages SET created_at = '2024-01-01 00:00:00'`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.onDownload = func(key string) {
		if key == "u/m2.jpg.enc" {
			cancel()
		}
	}

	var batches int
	total, err := f.engine.RunUntilDone(ctx, Options{BatchSize: 1}, func(*Report) { batches++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, batches)
	assert.Equal(t, 1, total.Total)
	assert.Equal(t, 2, total.Remaining)
}
