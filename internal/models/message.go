package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Message versions.
const (
	VersionPlaintext = 1
	VersionEncrypted = 2
)

// Media types stored in messages.media_type.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Moderation statuses.
const (
	ModerationPending = "pending"
	ModerationSafe    = "safe"
	ModerationFlagged = "flagged"
	// ModerationError marks a message the sweep gave up on.
	ModerationError = "error"
)

// Message represents a row of the 'messages' table.
type Message struct {
	ID               string       `db:"id"`
	SenderID         *string      `db:"sender_id"`
	RecipientID      *string      `db:"recipient_id"`
	Version          int          `db:"version"`
	Content          *string      `db:"content"`
	EncryptedContent *string      `db:"encrypted_content"`
	MediaPath        *string      `db:"media_path"`
	MediaType        *string      `db:"media_type"`
	EncryptionIV     *string      `db:"encryption_iv"`
	KeysMetadata     *KeyEnvelope `db:"keys_metadata"`
	ModerationStatus *string      `db:"moderation_status"`
	FlagReason       *string      `db:"flag_reason"`
	Category         *string      `db:"category"`
}

// HasEncryptedContent reports whether an encrypted text body is stored.
func (m *Message) HasEncryptedContent() bool {
	return m.EncryptedContent != nil && *m.EncryptedContent != ""
}

// HasMedia reports whether a media attachment is referenced.
func (m *Message) HasMedia() bool {
	return m.MediaPath != nil && *m.MediaPath != ""
}

// KeyEnvelope is the escrow record stored in messages.keys_metadata.
type KeyEnvelope struct {
	SenderWrappedKey    string `json:"sender_wrapped_key"`
	RecipientWrappedKey string `json:"recipient_wrapped_key,omitempty"`
	PendingRecipient    bool   `json:"pending_recipient,omitempty"`
	AdminWrappedKey     string `json:"admin_wrapped_key"`
	AdminKeyID          string `json:"admin_key_id,omitempty"`
	Algorithm           string `json:"algorithm,omitempty"`
	KeyWrapAlgorithm    string `json:"key_wrap_algorithm,omitempty"`
}

// Scan implements sql.Scanner for json/jsonb and text columns.
func (e *KeyEnvelope) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported keys_metadata type %T", src)
	}
	if len(data) == 0 {
		return errors.New("empty keys_metadata")
	}
	return json.Unmarshal(data, e)
}

// Value implements driver.Valuer.
func (e KeyEnvelope) Value() (driver.Value, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
