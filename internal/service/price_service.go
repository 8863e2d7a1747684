package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// ChannelTickers carries polled ticker summaries.
const ChannelTickers = "tickers"

// tickerKey is the price-cache key holding the last polled ticker price.
func tickerKey(pair string) string { return "ticker:" + pair }

// PriceService stores polled REST tickers in the price cache and publishes
// them on the signal bus.
type PriceService struct {
	prices domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.RWMutex
	last    domain.Ticker
	hasLast bool
}

// NewPriceService creates a PriceService. prices and bus may be nil.
func NewPriceService(prices domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		prices: prices,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// HandleTicker records a freshly polled ticker.
func (s *PriceService) HandleTicker(ctx context.Context, t domain.Ticker) error {
	ts := time.Unix(t.Timestamp, 0)
	if t.Timestamp == 0 {
		ts = time.Now()
	}
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, tickerKey(t.Pair), t.Last, ts); err != nil {
			return fmt.Errorf("price_service: set price for %q: %w", t.Pair, err)
		}
	}

	s.mu.Lock()
	s.last, s.hasLast = t, true
	s.mu.Unlock()

	if s.bus == nil {
		return nil
	}
	env, err := NewEnvelope("ticker", t.Pair, ts, t)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("price_service: marshal ticker: %w", err)
	}
	if err := s.bus.Publish(ctx, ChannelTickers, payload); err != nil {
		s.logger.WarnContext(ctx, "publish ticker failed",
			slog.String("pair", t.Pair),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// LastTicker returns the most recent ticker handled by this process.
func (s *PriceService) LastTicker() (domain.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// GetPrice returns the cached ticker price for pair.
func (s *PriceService) GetPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error) {
	if s.prices == nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("price_service: get price for %q: %w", pair, domain.ErrNotFound)
	}
	price, ts, err := s.prices.GetPrice(ctx, tickerKey(pair))
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("price_service: get price for %q: %w", pair, err)
	}
	return price, ts, nil
}
