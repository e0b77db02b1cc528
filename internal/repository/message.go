package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"chat-escrow/internal/models"
)

// ErrMessageNotFound is returned when no message has the requested id.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, sender_id, recipient_id, version, content, encrypted_content, media_path,
	media_type, encryption_iv, keys_metadata, moderation_status, flag_reason, category`

// Moderation is the outcome persisted by the classifier.
type Moderation struct {
	Status     string
	FlagReason *string
	Category   *string
}

type MessageRepository interface {
	GetMessageByID(ctx context.Context, id string) (*models.Message, error)
	ListEncryptedBatch(ctx context.Context, limit int) ([]*models.Message, error)
	CountEncrypted(ctx context.Context) (int, error)
	ListPendingModeration(ctx context.Context, limit int) ([]*models.Message, error)
	UpdateModeration(ctx context.Context, id string, m Moderation) error
	RecordModerationFailure(ctx context.Context, id string, maxAttempts int) error
	MarkMigrated(ctx context.Context, id string, content, mediaPath *string) error
	SaveMessage(ctx context.Context, msg *models.Message) error
}

type messageRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewMessageRepository(db *sqlx.DB, logger *zap.Logger) MessageRepository {
	return &messageRepository{db: db, logger: logger}
}

func (r *messageRepository) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	err := r.db.GetContext(ctx, &msg, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListEncryptedBatch returns the oldest version 2 messages first.
func (r *messageRepository) ListEncryptedBatch(ctx context.Context, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE version = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`)
	if err := r.db.SelectContext(ctx, &msgs, query, models.VersionEncrypted, limit); err != nil {
		return nil, fmt.Errorf("failed to list encrypted messages: %w", err)
	}
	return msgs, nil
}

func (r *messageRepository) CountEncrypted(ctx context.Context) (int, error) {
	var count int
	query := r.db.Rebind(`SELECT COUNT(*) FROM messages WHERE version = ?`)
	if err := r.db.GetContext(ctx, &count, query, models.VersionEncrypted); err != nil {
		return 0, fmt.Errorf("failed to count encrypted messages: %w", err)
	}
	return count, nil
}

// ListPendingModeration returns messages that were never classified or are
// still pending. Messages with fewer failed attempts come first, then the
// oldest.
func (r *messageRepository) ListPendingModeration(ctx context.Context, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE moderation_status IS NULL OR moderation_status = ?
		ORDER BY moderation_attempts ASC, created_at ASC, id ASC
		LIMIT ?`)
	if err := r.db.SelectContext(ctx, &msgs, query, models.ModerationPending, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	return msgs, nil
}

func (r *messageRepository) UpdateModeration(ctx context.Context, id string, m Moderation) error {
	query := r.db.Rebind(`UPDATE messages SET moderation_status = ?, flag_reason = ?, category = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, m.Status, m.FlagReason, m.Category, id)
	if err != nil {
		return fmt.Errorf("failed to update moderation: %w", err)
	}
	return expectOneRow(res)
}

// RecordModerationFailure counts a failed classification. Once maxAttempts
// is reached the message leaves the pending queue with status error.
func (r *messageRepository) RecordModerationFailure(ctx context.Context, id string, maxAttempts int) error {
	query := r.db.Rebind(`UPDATE messages SET
		moderation_attempts = moderation_attempts + 1,
		moderation_status = CASE WHEN moderation_attempts + 1 >= ? THEN ? ELSE moderation_status END
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, maxAttempts, models.ModerationError, id)
	if err != nil {
		return fmt.Errorf("failed to record moderation failure: %w", err)
	}
	return expectOneRow(res)
}

// MarkMigrated rewrites a message as version 1 and clears every encryption
// field. A nil content or mediaPath leaves that column unchanged.
func (r *messageRepository) MarkMigrated(ctx context.Context, id string, content, mediaPath *string) error {
	query := r.db.Rebind(`UPDATE messages SET
		version = ?,
		content = COALESCE(?, content),
		media_path = COALESCE(?, media_path),
		encrypted_content = NULL,
		encryption_iv = NULL,
		keys_metadata = NULL
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, models.VersionPlaintext, content, mediaPath, id)
	if err != nil {
		return fmt.Errorf("failed to mark message migrated: %w", err)
	}
	return expectOneRow(res)
}

// SaveMessage inserts a message row. Used by seeding tools and tests.
func (r *messageRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := r.db.Rebind(`INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Version, msg.Content, msg.EncryptedContent,
		msg.MediaPath, msg.MediaType, msg.EncryptionIV, msg.KeysMetadata,
		msg.ModerationStatus, msg.FlagReason, msg.Category)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}
