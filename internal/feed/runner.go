package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Connector is the connection lifecycle of the push transport.
// *pusher.Client implements it.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Runner keeps the push transport connected for the lifetime of a context.
// Once connected the transport reconnects on its own; Runner only retries
// the initial dial.
type Runner struct {
	conn      Connector
	logger    *slog.Logger
	retry     time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

// NewRunner creates a Runner for conn.
func NewRunner(conn Connector, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		conn:   conn,
		logger: logger.With(slog.String("component", "feed_runner")),
		retry:  2 * time.Second,
		done:   make(chan struct{}),
	}
}

// Run connects and blocks until ctx is cancelled or Close is called, then
// closes the transport.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.conn.Close(); err != nil {
			r.logger.Warn("closing transport", slog.String("error", err.Error()))
		}
	}()

	for {
		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := r.conn.Connect(connCtx)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("feed connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", r.retry),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case <-time.After(r.retry):
		}
	}

	r.logger.Info("feed connected")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return nil
	}
}

// Close stops Run.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
