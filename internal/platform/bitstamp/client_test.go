package bitstamp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/platform/httpapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			http.Error(w, "no route "+key, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClient_Ticker(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/ticker/": `{"high": "106.00", "last": "104.50", "timestamp": "1700000000", "bid": "104.40",
			"vwap": "103.1", "volume": "5000.12345678", "low": "99.00", "ask": "104.60"}`,
	})

	tk, err := NewClient(srv.URL+"/api/", "", time.Second).Ticker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "btcusd", tk.Pair)
	assert.True(t, tk.Last.Equal(dec("104.5")))
	assert.Equal(t, "5000.12345678", tk.Volume.String())
	require.NotNil(t, tk.VWAP)
	assert.True(t, tk.VWAP.Equal(dec("103.1")))
	assert.Equal(t, int64(1700000000), tk.Timestamp)
}

func TestClient_TickerWithoutVWAP(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/ticker/": `{"high": "1", "last": "1", "timestamp": 1, "bid": "1", "volume": "1", "low": "1", "ask": "1"}`,
	})
	tk, err := NewClient(srv.URL+"/api", "", time.Second).Ticker(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tk.VWAP)
}

func TestClient_TickerMalformed(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/ticker/": `{"high": "1"}`,
	})
	_, err := NewClient(srv.URL+"/api/", "", time.Second).Ticker(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedData))
}

func TestClient_OrderBook(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/order_book/?group=1": `{"timestamp": "1700000000", "bids": [["100.00", "2.0"], ["99.00", "1"]], "asks": [["105.00", "1.5"]]}`,
		"/api/order_book/?group=0": `{"bids": [], "asks": []}`,
	})
	c := NewClient(srv.URL+"/api/", "", time.Second)

	book, err := c.OrderBook(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	assert.True(t, book.Bids[0].Price.Equal(dec("100")))
	assert.True(t, book.Asks[0].Amount.Equal(dec("1.5")))
	assert.Equal(t, int64(1700000000), book.Timestamp)

	book, err = c.OrderBook(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, book.IsEmpty())
}

func TestClient_Transactions(t *testing.T) {
	srv, hits := newTestServer(t, map[string]string{
		"/api/transactions/?time=hour": `[
			{"date": "1700000100", "tid": 11, "price": "104.50", "amount": "0.5", "type": 0},
			{"date": "1700000000", "tid": "10", "price": "104.00", "amount": "1"}
		]`,
	})
	c := NewClient(srv.URL+"/api/", "", time.Second)

	trades, err := c.Transactions(context.Background(), domain.TimeframeHour)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.NotNil(t, trades[0].ID)
	assert.Equal(t, int64(11), *trades[0].ID)
	assert.Equal(t, float64(1700000100), trades[0].Timestamp)
	assert.Equal(t, domain.DirectionBuy, trades[0].Direction)
	assert.Equal(t, int64(10), *trades[1].ID)
	assert.Equal(t, domain.DirectionUnknown, trades[1].Direction)

	before := hits.Load()
	_, err = c.Transactions(context.Background(), domain.Timeframe("day"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Equal(t, before, hits.Load(), "invalid timeframe makes no request")
}

func TestClient_EURUSD(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"/api/eur_usd/": `{"sell": "1.0812", "buy": "1.0950"}`,
	})
	rate, err := NewClient(srv.URL+"/api/", "", time.Second).EURUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Buy.Equal(dec("1.095")))
	assert.True(t, rate.Sell.Equal(dec("1.0812")))
}

func TestClient_BadStatus(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{})
	_, err := NewClient(srv.URL+"/api/", "", time.Second).EURUSD(context.Background())
	require.Error(t, err)
	assert.True(t, httpapi.IsStatus(err, http.StatusInternalServerError))
}
