package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/observer"
)

// Bus channels and streams written by the market mirror.
const (
	ChannelTrades = "trades"
	ChannelBooks  = "books"
	StreamTrades  = "stream:trades"
)

// DefaultQueueSize bounds the number of pending mirror writes.
const DefaultQueueSize = 1024

// Envelope is the JSON message published on the signal bus.
type Envelope struct {
	Event string          `json:"event"`
	Pair  string          `json:"pair"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals v into an Envelope.
func NewEnvelope(event, pair string, ts time.Time, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("service: envelope %s: %w", event, err)
	}
	return Envelope{Event: event, Pair: pair, Time: ts.UTC(), Data: data}, nil
}

type mirrorJob struct {
	book  *domain.OrderBook
	trade *domain.Trade
	at    time.Time
}

// MarketService mirrors the tracker's books and classified trades into the
// Redis caches and the signal bus. Tracker listeners only enqueue; Run does
// the I/O.
type MarketService struct {
	books  domain.OrderbookCache
	prices domain.PriceCache
	bus    domain.SignalBus
	pair   string
	now    func() time.Time
	logger *slog.Logger

	queue   chan mirrorJob
	dropped atomic.Int64
}

// NewMarketService creates a MarketService for one pair. Any of books,
// prices and bus may be nil to skip that sink.
func NewMarketService(
	books domain.OrderbookCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	pair string,
	queueSize int,
	logger *slog.Logger,
) *MarketService {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &MarketService{
		books:  books,
		prices: prices,
		bus:    bus,
		pair:   pair,
		now:    time.Now,
		logger: logger.With(slog.String("component", "market_service")),
		queue:  make(chan mirrorJob, queueSize),
	}
}

// Attach registers the mirror on the tracker's book and trade topics.
func (s *MarketService) Attach(t *observer.Tracker) (detach func() error, err error) {
	bookID, err := t.OrderBooks().Listen(s.OnOrderBook)
	if err != nil {
		return nil, fmt.Errorf("service: attach books: %w", err)
	}
	tradeID, err := t.Trades().Listen(s.OnTrade)
	if err != nil {
		_ = t.OrderBooks().Unlisten(bookID)
		return nil, fmt.Errorf("service: attach trades: %w", err)
	}
	return func() error {
		return errors.Join(
			t.OrderBooks().Unlisten(bookID),
			t.Trades().Unlisten(tradeID),
		)
	}, nil
}

// OnOrderBook enqueues a book snapshot without blocking.
func (s *MarketService) OnOrderBook(book domain.OrderBook) {
	s.enqueue(mirrorJob{book: &book, at: s.now()})
}

// OnTrade enqueues a classified trade without blocking.
func (s *MarketService) OnTrade(trade domain.Trade) {
	s.enqueue(mirrorJob{trade: &trade, at: s.now()})
}

func (s *MarketService) enqueue(job mirrorJob) {
	select {
	case s.queue <- job:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("mirror queue full, dropping update", slog.Int64("dropped", n))
		}
	}
}

// Dropped returns how many updates were discarded because the queue was full.
func (s *MarketService) Dropped() int64 { return s.dropped.Load() }

// Pending returns the number of queued updates.
func (s *MarketService) Pending() int { return len(s.queue) }

// Run drains the queue until ctx is cancelled.
func (s *MarketService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "market mirror started", slog.String("pair", s.pair))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-s.queue:
			var err error
			switch {
			case job.book != nil:
				err = s.mirrorBook(ctx, *job.book, job.at)
			case job.trade != nil:
				err = s.mirrorTrade(ctx, *job.trade, job.at)
			}
			if err != nil {
				s.logger.WarnContext(ctx, "mirror write failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *MarketService) mirrorBook(ctx context.Context, book domain.OrderBook, at time.Time) error {
	if s.books != nil {
		if err := s.books.SetSnapshot(ctx, s.pair, book); err != nil {
			return fmt.Errorf("service: mirror book: %w", err)
		}
	}
	if s.bus == nil || book.IsEmpty() {
		return nil
	}
	bbo := domain.BBO{BestBid: book.Bids[0].Price, BestAsk: book.Asks[0].Price}
	env, err := NewEnvelope(observer.EventOrderBook, s.pair, at, bbo)
	if err != nil {
		return err
	}
	return s.publish(ctx, ChannelBooks, env, false)
}

func (s *MarketService) mirrorTrade(ctx context.Context, trade domain.Trade, at time.Time) error {
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, s.pair, trade.Price, trade.Time()); err != nil {
			return fmt.Errorf("service: mirror trade price: %w", err)
		}
	}
	if s.bus == nil {
		return nil
	}
	env, err := NewEnvelope(observer.EventTrade, s.pair, at, trade)
	if err != nil {
		return err
	}
	return s.publish(ctx, ChannelTrades, env, true)
}

func (s *MarketService) publish(ctx context.Context, channel string, env Envelope, durable bool) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("service: marshal envelope: %w", err)
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("service: publish %s: %w", channel, err)
	}
	if durable {
		if err := s.bus.StreamAppend(ctx, StreamTrades, payload); err != nil {
			return fmt.Errorf("service: stream append: %w", err)
		}
	}
	return nil
}
