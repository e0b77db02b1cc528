// Package gemini is the safety-review client for the moderation classifier.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"chat-escrow/internal/moderation"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from gemini")

type generateFunc func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// Client wraps the Gemini API client
type Client struct {
	client    *genai.Client
	generate  generateFunc
	logger    *zap.Logger
	modelName string
	timeout   time.Duration
}

// Config for Gemini client
type Config struct {
	APIKey            string
	ModelName         string // Default: "gemini-2.0-flash"
	SystemInstruction string
	Timeout           time.Duration
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash"
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(cfg.SystemInstruction)},
	}
	model.ResponseMIMEType = "application/json"
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: genai.Ptr[int32](300),
	}

	logger.Info("Gemini client initialized", zap.String("model", cfg.ModelName))

	return &Client{
		client:    client,
		generate:  model.GenerateContent,
		logger:    logger,
		modelName: cfg.ModelName,
		timeout:   cfg.Timeout,
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Review sends one multimodal request and returns the raw model text. It is
// never retried here.
func (c *Client) Review(ctx context.Context, req moderation.ReviewRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.generate(ctx, buildParts(req)...)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Gemini review completed",
		zap.String("message_id", req.MessageID),
		zap.String("model", c.modelName),
		zap.Bool("with_image", len(req.Image) > 0),
		zap.Duration("latency", time.Since(start)))
	return text, nil
}

func buildParts(req moderation.ReviewRequest) []genai.Part {
	parts := []genai.Part{genai.Text(BuildPrompt(req.Text, len(req.Image) > 0))}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Image})
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
