package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/envelope"
	"chat-escrow/internal/models"
	"chat-escrow/internal/repository"
	"chat-escrow/internal/storage"
)

// DefaultMaxAttempts is how often the sweep retries a failing message.
const DefaultMaxAttempts = 3

// ErrReviewUnavailable marks failures of the review service itself rather
// than of the message being reviewed.
var ErrReviewUnavailable = errors.New("safety review unavailable")

// ReviewRequest is what the safety-review model sees: decrypted text and an
// optional inline image.
type ReviewRequest struct {
	MessageID string
	Text      string
	Image     []byte
	ImageMIME string
}

// Reviewer calls the external safety-review model and returns its raw output.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (string, error)
}

// FlagAlert is sent to moderators for flagged messages. It never carries
// message content.
type FlagAlert struct {
	MessageID string
	Reason    string
	Category  string
}

// Notifier delivers moderator alerts.
type Notifier interface {
	NotifyFlagged(ctx context.Context, alert FlagAlert) error
}

// Result describes one classification.
type Result struct {
	MessageID  string
	Outcome    Outcome
	Skipped    bool
	SkipReason SkipReason
}

// Classifier runs the pre-filter and, when needed, the decrypt-and-review
// pipeline for one message at a time.
type Classifier struct {
	messages    repository.MessageRepository
	store       storage.Store
	keys        crypto.KeyStore
	bucket      string
	heuristics  *Heuristics
	reviewer    Reviewer
	notifier    Notifier
	maxAttempts int
	logger      *zap.Logger
}

// ClassifierDeps wires a Classifier. Reviewer nil means no API key is
// configured; Notifier is optional.
type ClassifierDeps struct {
	Messages    repository.MessageRepository
	Store       storage.Store
	Keys        crypto.KeyStore
	Bucket      string
	Heuristics  *Heuristics
	Reviewer    Reviewer
	Notifier    Notifier
	MaxAttempts int // sweep attempts per message; zero selects DefaultMaxAttempts
	Logger      *zap.Logger
}

func NewClassifier(deps ClassifierDeps) *Classifier {
	h := deps.Heuristics
	if h == nil {
		h = NewHeuristics(HeuristicConfig{Enabled: true})
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Classifier{
		messages:    deps.Messages,
		store:       deps.Store,
		keys:        deps.Keys,
		bucket:      deps.Bucket,
		heuristics:  h,
		reviewer:    deps.Reviewer,
		notifier:    deps.Notifier,
		maxAttempts: maxAttempts,
		logger:      deps.Logger,
	}
}

// Classify loads a message by id and classifies it.
func (c *Classifier) Classify(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, apperr.BadRequest("Missing messageId")
	}
	msg, err := c.messages.GetMessageByID(ctx, id)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load message", err)
	}
	return c.ClassifyMessage(ctx, msg)
}

// ClassifyMessage classifies msg and persists the outcome on every path.
func (c *Classifier) ClassifyMessage(ctx context.Context, msg *models.Message) (*Result, error) {
	var opener *envelope.Opener
	if envelope.RequiresDecryption(msg) {
		opener = envelope.NewOpener(msg, c.keys)
	}

	text, err := c.messageText(msg, opener)
	if err != nil {
		return nil, err
	}

	decision := c.heuristics.Evaluate(text, msg.HasMedia())
	if decision.Skip {
		result := &Result{
			MessageID:  msg.ID,
			Outcome:    Outcome{Status: models.ModerationSafe},
			Skipped:    true,
			SkipReason: decision.Reason,
		}
		if c.heuristics.LogSkipReasons() {
			c.logger.Info("Review skipped by heuristics",
				zap.String("message_id", msg.ID),
				zap.String("reason", string(decision.Reason)))
		}
		if err := c.persist(ctx, msg.ID, result.Outcome); err != nil {
			return nil, err
		}
		return result, nil
	}

	if c.reviewer == nil {
		return nil, apperr.Configuration("moderation API key is not configured", ErrReviewUnavailable)
	}

	req := ReviewRequest{MessageID: msg.ID, Text: text}
	if err := c.attachMedia(ctx, msg, opener, &req); err != nil {
		return nil, err
	}

	raw, err := c.reviewer.Review(ctx, req)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.ExternalService("safety review failed", err)
	}

	verdict := ParseVerdict(raw)
	if verdict.Kind == VerdictParseFailed {
		c.logger.Warn("Review response was not valid JSON, using keyword fallback", zap.String("message_id", msg.ID))
	}
	outcome := verdict.Outcome()

	if err := c.persist(ctx, msg.ID, outcome); err != nil {
		return nil, err
	}
	c.logger.Info("Message reviewed",
		zap.String("message_id", msg.ID),
		zap.String("status", outcome.Status),
		zap.String("trigger", string(decision.Reason)))

	if outcome.Status == models.ModerationFlagged {
		c.alert(ctx, msg.ID, outcome)
	}

	return &Result{MessageID: msg.ID, Outcome: outcome}, nil
}

func (c *Classifier) messageText(msg *models.Message, opener *envelope.Opener) (string, error) {
	if msg.Version == models.VersionEncrypted {
		if !msg.HasEncryptedContent() {
			return "", nil
		}
		return opener.OpenText()
	}
	if msg.Content == nil {
		return "", nil
	}
	return *msg.Content, nil
}

// attachMedia adds the image to req. Videos are not sent inline; a missing
// blob degrades to a text-only review.
func (c *Classifier) attachMedia(ctx context.Context, msg *models.Message, opener *envelope.Opener, req *ReviewRequest) error {
	if !msg.HasMedia() || msg.MediaType == nil || *msg.MediaType != models.MediaTypeImage {
		return nil
	}

	key := storage.NormalizePath(*msg.MediaPath, c.bucket)
	blob, err := c.store.Download(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn("Media blob missing, reviewing text only", zap.String("message_id", msg.ID), zap.String("key", key))
		return nil
	}
	if err != nil {
		return apperr.Storage("failed to download media "+key, err)
	}

	if msg.Version == models.VersionEncrypted {
		blob, err = opener.OpenMedia(blob)
		if err != nil {
			return err
		}
	}

	req.Image = blob
	req.ImageMIME = storage.ContentType(msg.MediaType)
	return nil
}

func (c *Classifier) persist(ctx context.Context, id string, outcome Outcome) error {
	err := c.messages.UpdateModeration(ctx, id, repository.Moderation{
		Status:     outcome.Status,
		FlagReason: outcome.Reason,
		Category:   outcome.Category,
	})
	if err != nil {
		return apperr.Internal("failed to store moderation result", err)
	}
	return nil
}

func (c *Classifier) alert(ctx context.Context, id string, outcome Outcome) {
	if c.notifier == nil {
		return
	}
	alert := FlagAlert{MessageID: id}
	if outcome.Reason != nil {
		alert.Reason = *outcome.Reason
	}
	if outcome.Category != nil {
		alert.Category = *outcome.Category
	}
	if err := c.notifier.NotifyFlagged(ctx, alert); err != nil {
		c.logger.Error("Failed to send moderator alert", zap.String("message_id", id), zap.Error(err))
	}
}

// SweepStats summarises one ClassifyPending run.
type SweepStats struct {
	Processed int
	Flagged   int
	Failed    int
}

// ClassifyPending classifies up to limit pending messages sequentially.
// A failed message is counted against its attempts and moves behind the
// rest of the queue; after the last attempt it gets status error. When the
// review service itself is unavailable the sweep stops without charging the
// message.
func (c *Classifier) ClassifyPending(ctx context.Context, limit int) (SweepStats, error) {
	var stats SweepStats

	msgs, err := c.messages.ListPendingModeration(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending messages: %w", err)
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		result, err := c.ClassifyMessage(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if errors.Is(err, ErrReviewUnavailable) {
				c.logger.Warn("Safety review unavailable, ending sweep early",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				return stats, nil
			}
			stats.Failed++
			c.logger.Error("Failed to classify message",
				zap.String("message_id", msg.ID),
				zap.String("kind", apperr.KindOf(err).String()),
				zap.Error(err))
			if recErr := c.messages.RecordModerationFailure(ctx, msg.ID, c.maxAttempts); recErr != nil {
				c.logger.Error("Failed to record moderation failure",
					zap.String("message_id", msg.ID),
					zap.Error(recErr))
			}
			continue
		}
		stats.Processed++
		if result.Outcome.Status == models.ModerationFlagged {
			stats.Flagged++
		}
	}
	return stats, nil
}
