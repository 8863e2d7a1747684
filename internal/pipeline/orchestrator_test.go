package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestOrchestrator_CleanShutdown(t *testing.T) {
	o := NewOrchestrator(slog.Default())
	o.Recorder = NewTradeRecorder(&fakeIngester{}, RecorderConfig{}, slog.Default())
	o.Poller = runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, o.Run(ctx))
}

func TestOrchestrator_StageFailureStopsAll(t *testing.T) {
	boom := errors.New("boom")
	o := NewOrchestrator(slog.Default())
	o.Recorder = NewTradeRecorder(&fakeIngester{}, RecorderConfig{}, slog.Default())
	o.Poller = runnerFunc(func(context.Context) error { return boom })

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "poller")
}
