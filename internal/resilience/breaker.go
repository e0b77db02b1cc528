// Package resilience guards calls to external services with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"chat-escrow/internal/apperr"
	"chat-escrow/internal/moderation"
)

// ErrCircuitOpen indicates the circuit breaker is open
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig configures a circuit breaker. Zero values select defaults.
type BreakerConfig struct {
	Name        string        `yaml:"name"`
	MaxFailures int           `yaml:"max_failures" validate:"gte=0"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// BreakerReviewer wraps a moderation.Reviewer. After MaxFailures consecutive
// failures it fails fast for OpenTimeout. It never retries.
type BreakerReviewer struct {
	next   moderation.Reviewer
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewBreakerReviewer(next moderation.Reviewer, cfg BreakerConfig, logger *zap.Logger) *BreakerReviewer {
	if cfg.Name == "" {
		cfg.Name = "safety-review"
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		// a cancelled caller says nothing about the health of the service
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BreakerReviewer{next: next, cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Review implements moderation.Reviewer.
func (b *BreakerReviewer) Review(ctx context.Context, req moderation.ReviewRequest) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Review(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.ExternalService("safety review unavailable", fmt.Errorf("%w: %w", moderation.ErrReviewUnavailable, err))
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state.
func (b *BreakerReviewer) State() gobreaker.State {
	return b.cb.State()
}
