package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/crypto"
	"chat-escrow/internal/envelope"
	"chat-escrow/internal/models"
	"chat-escrow/internal/repository"
	"chat-escrow/internal/storage"
)

// TextResult is the decrypt-text response body.
type TextResult struct {
	Version   int     `json:"version"`
	Content   *string `json:"content"`
	MediaPath *string `json:"media_path"`
	MediaType *string `json:"media_type"`
}

// MediaResult is a decrypted media blob.
type MediaResult struct {
	Data        []byte
	ContentType string
}

// GatewayService decrypts messages for authorized operators.
type GatewayService struct {
	messages repository.MessageRepository
	store    storage.Store
	keys     crypto.KeyStore
	bucket   string
	logger   *zap.Logger
}

func NewGatewayService(messages repository.MessageRepository, store storage.Store, keys crypto.KeyStore, bucket string, logger *zap.Logger) *GatewayService {
	return &GatewayService{messages: messages, store: store, keys: keys, bucket: bucket, logger: logger}
}

// LoadMessage fetches a message, mapping absence to a NotFound error.
func LoadMessage(ctx context.Context, messages repository.MessageRepository, id string) (*models.Message, error) {
	if id == "" {
		return nil, apperr.BadRequest("Missing messageId")
	}
	msg, err := messages.GetMessageByID(ctx, id)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load message", err)
	}
	return msg, nil
}

// DecryptText returns the plaintext body. Version 1 rows pass through.
func (s *GatewayService) DecryptText(ctx context.Context, operator *models.Operator, id string) (*TextResult, error) {
	msg, err := LoadMessage(ctx, s.messages, id)
	if err != nil {
		return nil, err
	}

	result := &TextResult{
		Version:   msg.Version,
		Content:   msg.Content,
		MediaPath: msg.MediaPath,
		MediaType: msg.MediaType,
	}
	if msg.Version != models.VersionEncrypted {
		return result, nil
	}

	if err := envelope.Validate(msg); err != nil {
		return nil, err
	}

	if msg.HasEncryptedContent() {
		text, err := envelope.NewOpener(msg, s.keys).OpenText()
		if err != nil {
			return nil, err
		}
		result.Content = &text
	}

	s.logger.Info("Message text decrypted",
		zap.String("message_id", msg.ID),
		zap.String("operator_id", operatorID(operator)),
		zap.String("admin_key_id", msg.KeysMetadata.AdminKeyID))
	return result, nil
}

// DecryptMedia downloads the message attachment and decrypts it if needed.
func (s *GatewayService) DecryptMedia(ctx context.Context, operator *models.Operator, id string) (*MediaResult, error) {
	msg, err := LoadMessage(ctx, s.messages, id)
	if err != nil {
		return nil, err
	}
	if !msg.HasMedia() {
		return nil, apperr.BadRequest("Message has no media")
	}

	key := storage.NormalizePath(*msg.MediaPath, s.bucket)
	blob, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, apperr.Storage("failed to download media "+key, err)
	}

	if msg.Version == models.VersionEncrypted {
		if err := envelope.Validate(msg); err != nil {
			return nil, err
		}
		blob, err = envelope.NewOpener(msg, s.keys).OpenMedia(blob)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Message media decrypted",
			zap.String("message_id", msg.ID),
			zap.String("operator_id", operatorID(operator)),
			zap.Int("bytes", len(blob)))
	}

	return &MediaResult{Data: blob, ContentType: storage.ContentType(msg.MediaType)}, nil
}

func operatorID(op *models.Operator) string {
	if op == nil {
		return ""
	}
	return op.UserID
}
