package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// Poller calls a target on a fixed interval and hands every result, or
// error, to a processor. The first call happens immediately.
type Poller[T any] struct {
	name      string
	interval  time.Duration
	target    func(ctx context.Context) (T, error)
	processor func(ctx context.Context, v T, err error)
	logger    *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPoller validates its arguments and returns a Poller. A nil target or
// processor, or a non-positive interval, is rejected with
// domain.ErrInvalidArgument.
func NewPoller[T any](
	name string,
	interval time.Duration,
	target func(ctx context.Context) (T, error),
	processor func(ctx context.Context, v T, err error),
	logger *slog.Logger,
) (*Poller[T], error) {
	if target == nil || processor == nil {
		return nil, fmt.Errorf("pipeline: poller %s: %w: target and processor are required", name, domain.ErrInvalidArgument)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("pipeline: poller %s: %w: interval %s", name, domain.ErrInvalidArgument, interval)
	}
	return &Poller[T]{
		name:      name,
		interval:  interval,
		target:    target,
		processor: processor,
		logger:    logger.With(slog.String("component", "poller"), slog.String("poller", name)),
		stop:      make(chan struct{}),
	}, nil
}

// Run polls until ctx is cancelled or Stop is called. It returns nil after
// Stop and ctx.Err() on cancellation.
func (p *Poller[T]) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			p.logger.InfoContext(ctx, "poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop halts a running poller. It is safe to call more than once.
func (p *Poller[T]) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Poller[T]) poll(ctx context.Context) {
	v, err := p.target(ctx)
	if err != nil {
		p.logger.DebugContext(ctx, "poll failed", slog.String("error", err.Error()))
	}
	p.processor(ctx, v, err)
}
