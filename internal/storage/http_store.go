package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPStore is a client for a REST object storage API
// (GET/POST/DELETE /object/{bucket}/{key}).
type HTTPStore struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	URL        string
	Bucket     string
	ServiceKey string
	Timeout    time.Duration
}

// NewHTTPStore creates a new object storage client
func NewHTTPStore(cfg HTTPConfig, logger *zap.Logger) *HTTPStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second // media blobs can be large
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		bucket:     cfg.Bucket,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *HTTPStore) objectURL(key string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, escapeKey(key))
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (s *HTTPStore) newRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(key), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("apikey", s.serviceKey)
	}
	return req, nil
}

// Download fetches the object stored under key.
func (s *HTTPStore) Download(ctx context.Context, key string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, key)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Upload stores data under key, replacing any existing object.
func (s *HTTPStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	req, err := s.newRequest(ctx, http.MethodPost, key, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError(resp, key)
	}

	s.logger.Debug("Object uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError(resp, key)
	}
}

func statusError(resp *http.Response, key string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound ||
		(resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "not found")) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("object storage returned status %d: %s", resp.StatusCode, string(body))
}
