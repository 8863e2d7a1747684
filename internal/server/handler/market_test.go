package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeView struct {
	book   domain.OrderBook
	fresh  bool
	trades []domain.Trade
	last   time.Time
}

func (v *fakeView) BBO() (domain.BBO, bool) {
	if !v.fresh || v.book.IsEmpty() {
		return domain.BBO{}, false
	}
	return domain.BBO{BestBid: v.book.Bids[0].Price, BestAsk: v.book.Asks[0].Price}, true
}

func (v *fakeView) OrderBook() domain.OrderBook {
	if !v.fresh {
		return domain.EmptyOrderBook()
	}
	return v.book.Clone()
}

func (v *fakeView) RecentTrades() []domain.Trade { return v.trades }
func (v *fakeView) Fresh() bool                  { return v.fresh }
func (v *fakeView) LastUpdate() time.Time        { return v.last }

type fakeREST struct {
	ticker domain.Ticker
	err    error
}

func (f *fakeREST) Ticker(context.Context) (domain.Ticker, error) { return f.ticker, f.err }

func (f *fakeREST) Transactions(_ context.Context, tf domain.Timeframe) ([]domain.Trade, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("bitstamp: transactions: %w", domain.ErrInvalidArgument)
	}
	return []domain.Trade{{Price: d("1"), Amount: d("2")}}, nil
}

func (f *fakeREST) EURUSD(context.Context) (domain.ConversionRate, error) {
	return domain.ConversionRate{Buy: d("1.1"), Sell: d("1.09")}, nil
}

type fakeHistory struct{ opts domain.ListOpts }

func (f *fakeHistory) ListRecent(_ context.Context, pair string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	f.opts = opts
	return []domain.TradeRecord{{Pair: pair, Price: d("5")}}, nil
}

type fakeTickers struct {
	t  domain.Ticker
	ok bool
}

func (f fakeTickers) LastTicker() (domain.Ticker, bool) { return f.t, f.ok }

func freshView() *fakeView {
	return &fakeView{
		fresh: true,
		last:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		book: domain.OrderBook{
			Bids: []domain.Order{{Price: d("100"), Amount: d("1")}, {Price: d("99"), Amount: d("1")}},
			Asks: []domain.Order{{Price: d("102"), Amount: d("1")}, {Price: d("103"), Amount: d("1")}},
		},
		trades: []domain.Trade{
			{Price: d("3"), Direction: domain.DirectionBuy},
			{Price: d("2"), Direction: domain.DirectionSell},
			{Price: d("1"), Direction: domain.DirectionBuy},
		},
	}
}

func do(t *testing.T, fn http.HandlerFunc, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestMarketHandler_BBO(t *testing.T) {
	h := NewMarketHandler("btcusd", freshView(), nil, nil, nil, slog.Default())
	rec, body := do(t, h.GetBBO, "/api/market/bbo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", body["best_bid"])
	assert.Equal(t, "102", body["best_ask"])
	assert.Equal(t, "2", body["spread"])
	assert.Equal(t, "101", body["mid"])

	stale := NewMarketHandler("btcusd", &fakeView{}, nil, nil, nil, slog.Default())
	rec, _ = do(t, stale.GetBBO, "/api/market/bbo")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMarketHandler_OrderBookDepth(t *testing.T) {
	h := NewMarketHandler("btcusd", freshView(), nil, nil, nil, slog.Default())
	rec, body := do(t, h.GetOrderBook, "/api/market/orderbook?depth=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	book := body["book"].(map[string]any)
	assert.Len(t, book["bids"], 1)
	assert.Len(t, book["asks"], 1)
	assert.Equal(t, true, body["fresh"])

	stale := NewMarketHandler("btcusd", &fakeView{}, nil, nil, nil, slog.Default())
	_, body = do(t, stale.GetOrderBook, "/api/market/orderbook")
	book = body["book"].(map[string]any)
	assert.Empty(t, book["bids"])
	assert.Equal(t, false, body["fresh"])
}

func TestMarketHandler_ListTrades(t *testing.T) {
	hist := &fakeHistory{}
	h := NewMarketHandler("btcusd", freshView(), hist, nil, nil, slog.Default())

	_, body := do(t, h.ListTrades, "/api/market/trades?limit=2&offset=1")
	trades := body["trades"].([]any)
	require.Len(t, trades, 2)
	assert.Equal(t, "2", trades[0].(map[string]any)["price"])

	_, body = do(t, h.ListTrades, "/api/market/trades?offset=10")
	assert.Empty(t, body["trades"])

	_, body = do(t, h.ListTrades, "/api/market/trades?source=db&limit=7")
	assert.Len(t, body["trades"], 1)
	assert.Equal(t, 7, hist.opts.Limit)

	noHist := NewMarketHandler("btcusd", freshView(), nil, nil, nil, slog.Default())
	rec, _ := do(t, noHist.ListTrades, "/api/market/trades?source=db")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMarketHandler_Ticker(t *testing.T) {
	cached := fakeTickers{t: domain.Ticker{Pair: "btcusd", Last: d("10")}, ok: true}
	h := NewMarketHandler("btcusd", freshView(), nil, cached, &fakeREST{err: errors.New("unused")}, slog.Default())
	rec, body := do(t, h.GetTicker, "/api/market/ticker")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", body["last"])

	rest := &fakeREST{ticker: domain.Ticker{Pair: "btcusd", Last: d("11")}}
	h = NewMarketHandler("btcusd", freshView(), nil, fakeTickers{}, rest, slog.Default())
	_, body = do(t, h.GetTicker, "/api/market/ticker")
	assert.Equal(t, "11", body["last"])

	rest.err = fmt.Errorf("wrap: %w", domain.ErrNotFound)
	rec, _ = do(t, h.GetTicker, "/api/market/ticker")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarketHandler_Transactions(t *testing.T) {
	h := NewMarketHandler("btcusd", freshView(), nil, nil, &fakeREST{}, slog.Default())

	rec, body := do(t, h.ListTransactions, "/api/market/transactions")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hour", body["time"])

	rec, _ = do(t, h.ListTransactions, "/api/market/transactions?time=day")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h.GetConversionRate, "/api/market/eurusd")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.1", body["buy"])
}
