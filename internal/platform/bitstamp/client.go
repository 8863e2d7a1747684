// Package bitstamp is the REST data API client for Bitstamp: ticker, order
// book, recent transactions and the EUR/USD conversion rate.
package bitstamp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/platform/httpapi"
	"github.com/alanyoungcy/coinwatch/internal/schema"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public data API root.
const DefaultBaseURL = "https://www.bitstamp.net/api/"

var (
	tickerSchema = schema.Object(
		schema.Required("high", schema.Decimal()),
		schema.Required("low", schema.Decimal()),
		schema.Required("bid", schema.Decimal()),
		schema.Required("ask", schema.Decimal()),
		schema.Required("last", schema.Decimal()),
		schema.Required("volume", schema.Decimal()),
		schema.Required("timestamp", schema.Int()),
		schema.Optional("vwap", schema.Decimal()),
	)

	level = schema.Tuple(schema.Decimal(), schema.Decimal())

	orderBookSchema = schema.Object(
		schema.Required("bids", schema.List(level)),
		schema.Required("asks", schema.List(level)),
		schema.Optional("timestamp", schema.Int()),
	)

	transactionsSchema = schema.List(schema.Object(
		schema.Required("id", schema.Int()),
		schema.Required("timestamp", schema.Int()),
		schema.Required("price", schema.Decimal()),
		schema.Required("amount", schema.Decimal()),
		schema.Optional("type", schema.Int()),
	))

	conversionSchema = schema.Object(
		schema.Required("buy", schema.Decimal()),
		schema.Required("sell", schema.Decimal()),
	)

	transactionKeys = map[string]string{"tid": "id", "date": "timestamp"}
)

// Client calls the data API. The v1 data API serves a single pair.
type Client struct {
	api  *httpapi.Client
	pair string
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, pair string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pair == "" {
		pair = "btcusd"
	}
	return &Client{api: httpapi.New(baseURL, timeout), pair: pair}
}

// Pair returns the pair the client reports for.
func (c *Client) Pair() string { return c.pair }

// Ticker returns the 24h summary.
func (c *Client) Ticker(ctx context.Context) (domain.Ticker, error) {
	body, err := c.api.Get(ctx, "ticker", nil)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("bitstamp: ticker: %w", err)
	}
	v, err := schema.Parse(body, tickerSchema)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("bitstamp: ticker: %w", err)
	}
	rec := v.(schema.Record)
	return domain.Ticker{
		Pair:      c.pair,
		Last:      rec.Decimal("last"),
		High:      rec.Decimal("high"),
		Low:       rec.Decimal("low"),
		Bid:       rec.Decimal("bid"),
		Ask:       rec.Decimal("ask"),
		Volume:    rec.Decimal("volume"),
		VWAP:      rec.DecimalPtr("vwap"),
		Timestamp: rec.Int("timestamp"),
	}, nil
}

// OrderBook returns the full book. group merges orders at the same price.
func (c *Client) OrderBook(ctx context.Context, group bool) (domain.OrderBook, error) {
	params := url.Values{}
	if group {
		params.Set("group", "1")
	} else {
		params.Set("group", "0")
	}
	body, err := c.api.Get(ctx, "order_book", params)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("bitstamp: order book: %w", err)
	}
	v, err := schema.Parse(body, orderBookSchema)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("bitstamp: order book: %w", err)
	}
	rec := v.(schema.Record)
	return domain.OrderBook{
		Bids:      levels(rec.List("bids")),
		Asks:      levels(rec.List("asks")),
		Timestamp: rec.Int("timestamp"),
	}, nil
}

func levels(raw []any) []domain.Order {
	out := make([]domain.Order, 0, len(raw))
	for _, item := range raw {
		pair := item.([]any)
		out = append(out, domain.Order{
			Price:  pair[0].(decimal.Decimal),
			Amount: pair[1].(decimal.Decimal),
		})
	}
	return out
}

// Transactions returns trades executed in the last minute or hour, as
// reported by the exchange (newest first). Any other timeframe fails with
// domain.ErrInvalidArgument before a request is made.
func (c *Client) Transactions(ctx context.Context, tf domain.Timeframe) ([]domain.Trade, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("bitstamp: transactions: %w: timeframe %q", domain.ErrInvalidArgument, tf)
	}
	body, err := c.api.Get(ctx, "transactions", url.Values{"time": {string(tf)}})
	if err != nil {
		return nil, fmt.Errorf("bitstamp: transactions: %w", err)
	}
	raw, err := schema.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("bitstamp: transactions: %w", err)
	}
	v, err := schema.Validate(schema.Remap(raw, transactionKeys), transactionsSchema)
	if err != nil {
		return nil, fmt.Errorf("bitstamp: transactions: %w", err)
	}

	items := v.([]any)
	trades := make([]domain.Trade, 0, len(items))
	for _, item := range items {
		rec := item.(schema.Record)
		trade := domain.Trade{
			ID:        rec.IntPtr("id"),
			Price:     rec.Decimal("price"),
			Amount:    rec.Decimal("amount"),
			Timestamp: float64(rec.Int("timestamp")),
		}
		if rec.Has("type") {
			// 0 is a buy, 1 a sell.
			switch rec.Int("type") {
			case 0:
				trade.Direction = domain.DirectionBuy
			case 1:
				trade.Direction = domain.DirectionSell
			}
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// EURUSD returns the conversion rate used by the exchange.
func (c *Client) EURUSD(ctx context.Context) (domain.ConversionRate, error) {
	body, err := c.api.Get(ctx, "eur_usd", nil)
	if err != nil {
		return domain.ConversionRate{}, fmt.Errorf("bitstamp: eur_usd: %w", err)
	}
	v, err := schema.Parse(body, conversionSchema)
	if err != nil {
		return domain.ConversionRate{}, fmt.Errorf("bitstamp: eur_usd: %w", err)
	}
	rec := v.(schema.Record)
	return domain.ConversionRate{Buy: rec.Decimal("buy"), Sell: rec.Decimal("sell")}, nil
}
