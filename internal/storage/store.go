// Package storage provides access to the chat media bucket.
package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// EncryptedSuffix marks media blobs that hold AES-GCM ciphertext.
const EncryptedSuffix = ".enc"

const objectSegment = "/storage/v1/object/"

var ErrNotFound = errors.New("object not found")

// Store is a blob store addressed by bucket-relative keys. Upload overwrites.
type Store interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// NormalizePath reduces a stored media reference to the bare object key.
// Accepted inputs include "u1/a.jpg", "chat-media/u1/a.jpg" and full URLs such
// as "https://host/storage/v1/object/public/chat-media/u1/a.jpg?token=...".
func NormalizePath(path, bucket string) string {
	p := strings.TrimSpace(path)

	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		}
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if i := strings.Index(p, objectSegment); i >= 0 {
		p = p[i+len(objectSegment):]
		for _, access := range []string{"public/", "sign/", "authenticated/"} {
			if strings.HasPrefix(p, access) {
				p = strings.TrimPrefix(p, access)
				break
			}
		}
	}

	p = strings.TrimLeft(p, "/")
	if bucket != "" {
		p = strings.TrimPrefix(p, bucket+"/")
	}
	return p
}

// IsEncryptedPath reports whether key carries the encrypted-media suffix.
func IsEncryptedPath(key string) bool {
	return strings.HasSuffix(key, EncryptedSuffix)
}

// DecryptedPath strips the encrypted-media suffix.
func DecryptedPath(key string) string {
	return strings.TrimSuffix(key, EncryptedSuffix)
}

// ContentType maps a message media_type to a response content type.
func ContentType(mediaType *string) string {
	if mediaType == nil {
		return "application/octet-stream"
	}
	switch *mediaType {
	case "image":
		return "image/jpeg"
	case "video":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
