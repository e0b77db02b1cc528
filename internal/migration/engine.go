// Package migration converts encrypted (version 2) messages back to plaintext
// storage in bounded, re-runnable batches.
package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/envelope"
	"chat-escrow/internal/models"
	"chat-escrow/internal/repository"
	"chat-escrow/internal/storage"
)

const (
	DefaultBatchSize = 50
	MaxBatchSize     = 100
)

// Options controls one batch.
type Options struct {
	DryRun    bool
	BatchSize int
}

// ClampBatchSize applies the default and the hard cap.
func ClampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	default:
		return n
	}
}

// ItemError records a message that could not be migrated. It stays at
// version 2 and is retried whole by the next run.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Stats are counted per message only once every step for it succeeded.
// Remaining is measured before the batch runs.
type Stats struct {
	Total          int `json:"total"`
	TextDecrypted  int `json:"textDecrypted"`
	MediaDecrypted int `json:"mediaDecrypted"`
	Errors         int `json:"errors"`
	Remaining      int `json:"remaining"`
}

// Report is the outcome of one batch. An interrupted batch stopped early
// because its context ended; Stats.Total then counts only the messages it
// got to.
type Report struct {
	RunID       string
	DryRun      bool
	Interrupted bool
	Stats       Stats
	Errors      []ItemError
	Message     string
}

// Done reports whether no further invocation is needed.
func (r *Report) Done() bool {
	return r.Stats.Remaining-(r.Stats.Total-r.Stats.Errors) <= 0
}

// Engine migrates messages one at a time. No transaction spans the blob store
// and the database; each step is safe to repeat instead.
type Engine struct {
	messages repository.MessageRepository
	store    storage.Store
	keys     crypto.KeyStore
	bucket   string
	logger   *zap.Logger
}

func NewEngine(messages repository.MessageRepository, store storage.Store, keys crypto.KeyStore, bucket string, logger *zap.Logger) *Engine {
	return &Engine{messages: messages, store: store, keys: keys, bucket: bucket, logger: logger}
}

type itemResult struct {
	text  bool
	media bool
}

// Run migrates one batch of the oldest version 2 messages.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	size := ClampBatchSize(opts.BatchSize)
	report := &Report{RunID: uuid.NewString(), DryRun: opts.DryRun}
	logger := e.logger.With(zap.String("run_id", report.RunID), zap.Bool("dry_run", opts.DryRun))

	batch, err := e.messages.ListEncryptedBatch(ctx, size)
	if err != nil {
		return nil, apperr.Internal("failed to fetch messages", err)
	}
	remaining, err := e.messages.CountEncrypted(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to count messages", err)
	}

	report.Stats.Total = len(batch)
	report.Stats.Remaining = remaining
	logger.Info("Migration batch started", zap.Int("batch", len(batch)), zap.Int("remaining", remaining))

	processed := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		res, err := e.migrateOne(ctx, msg, opts.DryRun)
		if err != nil && ctx.Err() != nil {
			// the message stays at version 2 and is retried whole next run
			report.Interrupted = true
			break
		}
		processed++
		if err != nil {
			report.Stats.Errors++
			report.Errors = append(report.Errors, ItemError{ID: msg.ID, Error: itemErrorMessage(err)})
			logger.Error("Failed to migrate message",
				zap.String("message_id", msg.ID),
				zap.String("kind", apperr.KindOf(err).String()),
				zap.Error(err))
			continue
		}
		if res.text {
			report.Stats.TextDecrypted++
		}
		if res.media {
			report.Stats.MediaDecrypted++
		}
	}
	if report.Interrupted {
		report.Stats.Total = processed
		logger.Warn("Migration batch interrupted", zap.Int("processed", processed), zap.Int("batch", len(batch)))
	}

	report.Message = progressMessage(report)
	logger.Info("Migration batch finished",
		zap.Int("total", report.Stats.Total),
		zap.Int("text_decrypted", report.Stats.TextDecrypted),
		zap.Int("media_decrypted", report.Stats.MediaDecrypted),
		zap.Int("errors", report.Stats.Errors))
	return report, nil
}

// itemErrorMessage is the caller-facing text for a failed message. Server
// side failures share one text; the detail is logged with the run id.
func itemErrorMessage(err error) string {
	if apperr.HTTPStatus(err) >= 500 {
		return "Failed to migrate message"
	}
	return apperr.PublicMessage(err)
}

func progressMessage(r *Report) string {
	migrated := r.Stats.Total - r.Stats.Errors
	if r.Interrupted {
		if r.DryRun {
			return fmt.Sprintf("Dry run interrupted after %d messages. No changes were made.", r.Stats.Total)
		}
		return fmt.Sprintf("Migration interrupted. Migrated %d messages; run the migration again to continue.", migrated)
	}
	if r.DryRun {
		return fmt.Sprintf("Dry run: %d of %d encrypted messages would be migrated by this batch. No changes were made.",
			migrated, r.Stats.Remaining)
	}
	if r.Stats.Total == 0 {
		return "Migration complete. No encrypted messages remain."
	}
	left := r.Stats.Remaining - migrated
	if left > 0 {
		return fmt.Sprintf("Migrated %d messages. %d encrypted messages remain; run the migration again to continue.",
			migrated, left)
	}
	return fmt.Sprintf("Migrated %d messages. Migration complete.", migrated)
}

// migrateOne runs the per-message sequence: decrypt text, move media
// (upload before delete), then rewrite the row. The message key is unwrapped
// at most once.
func (e *Engine) migrateOne(ctx context.Context, msg *models.Message, dryRun bool) (itemResult, error) {
	var res itemResult
	opener := envelope.NewOpener(msg, e.keys)

	var content *string
	if msg.HasEncryptedContent() {
		text, err := opener.OpenText()
		if err != nil {
			return res, err
		}
		content = &text
		res.text = true
	}

	var mediaPath *string
	if msg.HasMedia() {
		oldKey := storage.NormalizePath(*msg.MediaPath, e.bucket)
		if storage.IsEncryptedPath(oldKey) {
			newKey, decrypted, err := e.migrateMedia(ctx, msg, opener, oldKey, dryRun)
			if err != nil {
				return res, err
			}
			mediaPath = &newKey
			res.media = decrypted
		}
	}

	if dryRun {
		return res, nil
	}

	if err := e.messages.MarkMigrated(ctx, msg.ID, content, mediaPath); err != nil {
		return res, apperr.Internal("failed to update message", err)
	}
	return res, nil
}

// migrateMedia returns the plaintext key. decrypted is false when an earlier
// run already moved the blob but failed before updating the row.
func (e *Engine) migrateMedia(ctx context.Context, msg *models.Message, opener *envelope.Opener, oldKey string, dryRun bool) (string, bool, error) {
	newKey := storage.DecryptedPath(oldKey)

	blob, err := e.store.Download(ctx, oldKey)
	if errors.Is(err, storage.ErrNotFound) {
		if _, newErr := e.store.Download(ctx, newKey); newErr == nil {
			e.logger.Info("Media already migrated", zap.String("message_id", msg.ID), zap.String("key", newKey))
			return newKey, false, nil
		}
	}
	if err != nil {
		return "", false, apperr.Storage("failed to download media "+oldKey, err)
	}

	plaintext, err := opener.OpenMedia(blob)
	if err != nil {
		return "", false, err
	}
	if dryRun {
		return newKey, true, nil
	}

	if err := e.store.Upload(ctx, newKey, plaintext, storage.ContentType(msg.MediaType)); err != nil {
		return "", false, apperr.Storage("failed to upload media "+newKey, err)
	}
	if err := e.store.Delete(ctx, oldKey); err != nil {
		return "", false, apperr.Storage("failed to delete media "+oldKey, err)
	}
	return newKey, true, nil
}

// RunUntilDone repeats Run until nothing remains or a batch makes no
// progress. A dry run executes a single batch. An interrupted batch ends the
// loop with the context error and the totals so far.
func (e *Engine) RunUntilDone(ctx context.Context, opts Options, onBatch func(*Report)) (Stats, error) {
	var total Stats
	for {
		report, err := e.Run(ctx, opts)
		if err != nil {
			return total, err
		}
		if onBatch != nil {
			onBatch(report)
		}

		total.Total += report.Stats.Total
		total.TextDecrypted += report.Stats.TextDecrypted
		total.MediaDecrypted += report.Stats.MediaDecrypted
		total.Errors += report.Stats.Errors
		total.Remaining = report.Stats.Remaining - (report.Stats.Total - report.Stats.Errors)

		if report.Interrupted {
			return total, ctx.Err()
		}
		if opts.DryRun || report.Done() || report.Stats.Total == report.Stats.Errors {
			return total, nil
		}
	}
}
