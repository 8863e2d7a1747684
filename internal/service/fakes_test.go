package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

type fakeBookCache struct {
	mu    sync.Mutex
	books map[string]domain.OrderBook
}

func newFakeBookCache() *fakeBookCache {
	return &fakeBookCache{books: map[string]domain.OrderBook{}}
}

func (c *fakeBookCache) SetSnapshot(_ context.Context, market string, book domain.OrderBook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[market] = book
	return nil
}

func (c *fakeBookCache) GetSnapshot(_ context.Context, market string) (domain.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[market]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func (c *fakeBookCache) GetBBO(ctx context.Context, market string) (domain.BBO, error) {
	b, err := c.GetSnapshot(ctx, market)
	if err != nil {
		return domain.BBO{}, err
	}
	return domain.BBO{BestBid: b.Bids[0].Price, BestAsk: b.Asks[0].Price}, nil
}

type pricePoint struct {
	price decimal.Decimal
	ts    time.Time
}

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]pricePoint
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: map[string]pricePoint{}}
}

func (c *fakePriceCache) SetPrice(_ context.Context, market string, price decimal.Decimal, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[market] = pricePoint{price, ts}
	return nil
}

func (c *fakePriceCache) GetPrice(_ context.Context, market string) (decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[market]
	if !ok {
		return decimal.Decimal{}, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

func (b *fakeBus) last(channel string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.published[channel]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type fakeTradeStore struct {
	mu       sync.Mutex
	inserted []domain.TradeRecord
	lastOpts domain.ListOpts
}

func (s *fakeTradeStore) InsertBatch(_ context.Context, records []domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *fakeTradeStore) ListRecent(_ context.Context, _ string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOpts = opts
	return s.inserted, nil
}

func (s *fakeTradeStore) ListBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (s *fakeTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}
