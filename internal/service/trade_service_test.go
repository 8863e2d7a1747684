package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

func TestTradeService_Ingest(t *testing.T) {
	store := &fakeTradeStore{}
	audit := &fakeAudit{}
	svc := NewTradeService(store, audit, slog.Default())

	require.NoError(t, svc.IngestTrades(context.Background(), nil))
	assert.Empty(t, audit.events)

	rec := domain.NewTradeRecord("bitstamp", "btcusd", domain.Trade{
		Price: d("100"), Amount: d("1"), Timestamp: 1700000000, Direction: domain.DirectionSell,
	})
	require.NoError(t, svc.IngestTrades(context.Background(), []domain.TradeRecord{rec}))
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, []string{"trades.ingested"}, audit.events)
}

func TestTradeService_ListRecent(t *testing.T) {
	store := &fakeTradeStore{}
	svc := NewTradeService(store, nil, slog.Default())

	_, err := svc.ListRecent(context.Background(), "", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.ListRecent(context.Background(), "btcusd", domain.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, store.lastOpts.Limit)
}

func TestPriceService_HandleTicker(t *testing.T) {
	prices := newFakePriceCache()
	bus := newFakeBus()
	svc := NewPriceService(prices, bus, slog.Default())

	_, ok := svc.LastTicker()
	assert.False(t, ok)

	tk := domain.Ticker{Pair: "btcusd", Last: d("6500.5"), Timestamp: 1700000000}
	require.NoError(t, svc.HandleTicker(context.Background(), tk))

	price, ts, err := svc.GetPrice(context.Background(), "btcusd")
	require.NoError(t, err)
	assert.True(t, price.Equal(d("6500.5")))
	assert.Equal(t, time.Unix(1700000000, 0), ts)

	last, ok := svc.LastTicker()
	require.True(t, ok)
	assert.Equal(t, "btcusd", last.Pair)
	assert.Equal(t, 1, bus.count(ChannelTickers))

	_, _, err = svc.GetPrice(context.Background(), "etheur")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
