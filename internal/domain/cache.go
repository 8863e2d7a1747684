package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest trade price per market.
type PriceCache interface {
	SetPrice(ctx context.Context, market string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, market string) (decimal.Decimal, time.Time, error)
}

// OrderbookCache mirrors the tracker's current order book.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, market string, book OrderBook) error
	GetSnapshot(ctx context.Context, market string) (OrderBook, error)
	GetBBO(ctx context.Context, market string) (BBO, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter enforces a request budget per key and window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
