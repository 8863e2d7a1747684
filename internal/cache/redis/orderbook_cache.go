package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// OrderbookCache implements domain.OrderbookCache using Redis sorted sets and
// hashes for each market's book. Prices are stored as exact decimal strings
// (the sorted set member); the score is only used for ordering.
//
// Key schema:
//
//	{prefix}:book:{market}:bids     - sorted set of bid prices (score = price)
//	{prefix}:book:{market}:asks     - sorted set of ask prices (score = price)
//	{prefix}:book:{market}:bid:size - hash mapping price -> amount for bids
//	{prefix}:book:{market}:ask:size - hash mapping price -> amount for asks
//	{prefix}:book:{market}:bbo      - hash with fields "bid" and "ask"
//	{prefix}:book:{market}:meta     - hash with the "ts" field (feed timestamp)
type OrderbookCache struct {
	rdb    *redis.Client
	prefix string
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), prefix: c.prefix}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, bbo, meta string
}

func (oc *OrderbookCache) keys(market string) bookKeys {
	base := keyOf(oc.prefix, "book", market)
	return bookKeys{
		bids:    base + ":bids",
		asks:    base + ":asks",
		bidSize: base + ":bid:size",
		askSize: base + ":ask:size",
		bbo:     base + ":bbo",
		meta:    base + ":meta",
	}
}

// SetSnapshot atomically replaces the stored book for a market. The BBO hash
// is only written when both sides are non-empty.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, market string, book domain.OrderBook) error {
	k := oc.keys(market)
	pipe := oc.rdb.TxPipeline()

	pipe.Del(ctx, k.bids, k.asks, k.bidSize, k.askSize, k.bbo, k.meta)

	for _, lvl := range book.Bids {
		price := lvl.Price.String()
		pipe.ZAdd(ctx, k.bids, redis.Z{Score: lvl.Price.InexactFloat64(), Member: price})
		pipe.HSet(ctx, k.bidSize, price, lvl.Amount.String())
	}
	for _, lvl := range book.Asks {
		price := lvl.Price.String()
		pipe.ZAdd(ctx, k.asks, redis.Z{Score: lvl.Price.InexactFloat64(), Member: price})
		pipe.HSet(ctx, k.askSize, price, lvl.Amount.String())
	}

	if !book.IsEmpty() {
		pipe.HSet(ctx, k.bbo, "bid", book.Bids[0].Price.String(), "ask", book.Asks[0].Price.String())
	}
	pipe.HSet(ctx, k.meta, "ts", strconv.FormatInt(book.Timestamp, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", market, err)
	}
	return nil
}

// GetSnapshot reconstructs the stored book, bids descending and asks
// ascending. It returns domain.ErrNotFound if nothing is stored.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderBook, error) {
	k := oc.keys(market)
	pipe := oc.rdb.Pipeline()

	bidsCmd := pipe.ZRevRange(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRange(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderBook{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", market, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.OrderBook{}, fmt.Errorf("redis: orderbook %s: %w", market, domain.ErrNotFound)
	}

	book := domain.EmptyOrderBook()
	if ts, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		book.Timestamp = ts
	}

	bidPrices, _ := bidsCmd.Result()
	bidSizes, _ := bidSizeCmd.Result()
	bids, err := decodeLevels(bidPrices, bidSizes)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: orderbook %s bids: %w", market, err)
	}
	askPrices, _ := asksCmd.Result()
	askSizes, _ := askSizeCmd.Result()
	asks, err := decodeLevels(askPrices, askSizes)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: orderbook %s asks: %w", market, err)
	}
	book.Bids = bids
	book.Asks = asks
	return book, nil
}

func decodeLevels(prices []string, sizes map[string]string) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(prices))
	for _, p := range prices {
		price, err := decimal.NewFromString(p)
		if err != nil {
			return nil, err
		}
		amount := decimal.Zero
		if s, ok := sizes[p]; ok {
			if amount, err = decimal.NewFromString(s); err != nil {
				return nil, err
			}
		}
		out = append(out, domain.Order{Price: price, Amount: amount})
	}
	return out, nil
}

// GetBBO returns the stored best bid and ask. It returns domain.ErrNotFound
// if no BBO has been written.
func (oc *OrderbookCache) GetBBO(ctx context.Context, market string) (domain.BBO, error) {
	vals, err := oc.rdb.HGetAll(ctx, oc.keys(market).bbo).Result()
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: get bbo %s: %w", market, err)
	}
	return decodeBBO(market, vals)
}

func decodeBBO(market string, vals map[string]string) (domain.BBO, error) {
	bidStr, okBid := vals["bid"]
	askStr, okAsk := vals["ask"]
	if !okBid || !okAsk {
		return domain.BBO{}, fmt.Errorf("redis: bbo %s: %w", market, domain.ErrNotFound)
	}
	bid, err := decimal.NewFromString(bidStr)
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: parse bbo bid %s: %w", market, err)
	}
	ask, err := decimal.NewFromString(askStr)
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: parse bbo ask %s: %w", market, err)
	}
	return domain.BBO{BestBid: bid, BestAsk: ask}, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
