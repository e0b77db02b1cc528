// Package message_processor periodically classifies messages still awaiting
// moderation.
package message_processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"chat-escrow/internal/moderation"
)

// Sweeper classifies a bounded number of pending messages.
type Sweeper interface {
	ClassifyPending(ctx context.Context, limit int) (moderation.SweepStats, error)
}

// Config controls the sweep schedule.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Processor runs the moderation sweep on a schedule.
type Processor struct {
	sweeper Sweeper
	cfg     Config
	logger  *zap.Logger
}

// NewProcessor creates a new message processor.
func NewProcessor(sweeper Sweeper, cfg Config, logger *zap.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Processor{sweeper: sweeper, cfg: cfg, logger: logger}
}

// Run schedules the sweep and blocks until ctx is cancelled. Overlapping runs
// are skipped, not queued.
func (p *Processor) Run(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogAdapter{log: p.logger.Sugar()}),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(p.cfg.Interval),
		gocron.NewTask(func() {
			if _, err := p.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("Moderation sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("moderation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule moderation sweep: %w", err)
	}

	s.Start()
	p.logger.Info("Message processor started.",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("batch_size", p.cfg.BatchSize))

	<-ctx.Done()

	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	p.logger.Info("Message processor stopped.")
	return nil
}

// Sweep runs one pass over pending messages.
func (p *Processor) Sweep(ctx context.Context) (moderation.SweepStats, error) {
	start := time.Now()
	stats, err := p.sweeper.ClassifyPending(ctx, p.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	if stats.Processed+stats.Failed > 0 {
		p.logger.Info("Moderation sweep finished",
			zap.Int("processed", stats.Processed),
			zap.Int("flagged", stats.Flagged),
			zap.Int("failed", stats.Failed),
			zap.Duration("took", time.Since(start)))
	}
	return stats, nil
}

type gocronLogAdapter struct {
	log *zap.SugaredLogger
}

func (l *gocronLogAdapter) Debug(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l *gocronLogAdapter) Info(msg string, args ...any)  { l.log.Infow(msg, args...) }
func (l *gocronLogAdapter) Warn(msg string, args ...any)  { l.log.Warnw(msg, args...) }
func (l *gocronLogAdapter) Error(msg string, args ...any) { l.log.Errorw(msg, args...) }
