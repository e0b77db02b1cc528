package message_processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-escrow/internal/moderation"
)

type fakeSweeper struct {
	calls atomic.Int32
	limit atomic.Int32
	err   error
}

func (f *fakeSweeper) ClassifyPending(_ context.Context, limit int) (moderation.SweepStats, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	return moderation.SweepStats{Processed: 1}, f.err
}

func TestSweepPassesBatchSize(t *testing.T) {
	sweeper := &fakeSweeper{}
	p := NewProcessor(sweeper, Config{BatchSize: 7}, zap.NewNop())

	stats, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, int32(7), sweeper.limit.Load())
}

func TestSweepReturnsError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	p := NewProcessor(sweeper, Config{}, zap.NewNop())

	_, err := p.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(20), sweeper.limit.Load())
}

func TestRunSchedulesUntilCancelled(t *testing.T) {
	sweeper := &fakeSweeper{}
	p := NewProcessor(sweeper, Config{Interval: 20 * time.Millisecond, BatchSize: 5}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}
