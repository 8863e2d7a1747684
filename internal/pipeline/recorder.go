package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/observer"
)

// TradeIngester persists batches of classified trades.
type TradeIngester interface {
	IngestTrades(ctx context.Context, records []domain.TradeRecord) error
}

// RecorderConfig tunes a TradeRecorder.
type RecorderConfig struct {
	Exchange      string
	Pair          string
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// TradeRecorder buffers classified trades from the tracker and writes them
// in batches. The tracker listener never blocks; trades are dropped when the
// queue is full.
type TradeRecorder struct {
	ingester TradeIngester
	cfg      RecorderConfig
	logger   *slog.Logger

	queue    chan domain.TradeRecord
	dropped  atomic.Int64
	recorded atomic.Int64
}

// NewTradeRecorder creates a TradeRecorder. Zero config values get defaults.
func NewTradeRecorder(ingester TradeIngester, cfg RecorderConfig, logger *slog.Logger) *TradeRecorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10 * cfg.BatchSize
	}
	return &TradeRecorder{
		ingester: ingester,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "trade_recorder")),
		queue:    make(chan domain.TradeRecord, cfg.QueueSize),
	}
}

// Attach registers the recorder as a trade listener on t.
func (r *TradeRecorder) Attach(t *observer.Tracker) (detach func() error, err error) {
	id, err := t.AddTradeListener(r.OnTrade)
	if err != nil {
		return nil, fmt.Errorf("pipeline: attach recorder: %w", err)
	}
	return func() error { return t.Trades().Unlisten(id) }, nil
}

// OnTrade enqueues a classified trade.
func (r *TradeRecorder) OnTrade(trade domain.Trade) {
	rec := domain.NewTradeRecord(r.cfg.Exchange, r.cfg.Pair, trade)
	select {
	case r.queue <- rec:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("recorder queue full, dropping trade", slog.Int64("dropped", n))
		}
	}
}

// Dropped returns the number of trades discarded on a full queue.
func (r *TradeRecorder) Dropped() int64 { return r.dropped.Load() }

// Recorded returns the number of trades written so far.
func (r *TradeRecorder) Recorded() int64 { return r.recorded.Load() }

// Run drains the queue, flushing when a batch fills or the flush interval
// elapses. Pending trades are flushed on shutdown.
func (r *TradeRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.TradeRecord, 0, r.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.ingester.IngestTrades(ctx, batch); err != nil {
			r.logger.ErrorContext(ctx, "flush failed",
				slog.Int("count", len(batch)),
				slog.String("error", err.Error()),
			)
		} else {
			r.recorded.Add(int64(len(batch)))
		}
		batch = make([]domain.TradeRecord, 0, r.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return ctx.Err()
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
