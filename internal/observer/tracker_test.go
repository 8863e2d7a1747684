package observer

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func book(bid, ask string) domain.OrderBook {
	return domain.OrderBook{
		Bids: []domain.Order{{Price: dec(bid), Amount: dec("2")}},
		Asks: []domain.Order{{Price: dec(ask), Amount: dec("1")}},
	}
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewTracker(logger, opts...), clock
}

func TestTracker_BestQuotesFromBook(t *testing.T) {
	tr, clock := newTestTracker(t)

	require.NoError(t, tr.OnOrderBook(book("100", "105")))

	bid, ok := tr.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(dec("100")))
	ask, ok := tr.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(dec("105")))

	clock.Advance(60 * time.Second)
	_, ok = tr.BestBid()
	assert.True(t, ok, "exactly 60s old is still fresh")
}

func TestTracker_StaleBookReportsNoData(t *testing.T) {
	tr, clock := newTestTracker(t)
	require.NoError(t, tr.OnOrderBook(book("100", "105")))

	clock.Advance(61 * time.Second)

	_, ok := tr.BestBid()
	assert.False(t, ok)
	_, ok = tr.BestAsk()
	assert.False(t, ok)
	ob := tr.OrderBook()
	assert.NotNil(t, ob.Bids)
	assert.NotNil(t, ob.Asks)
	assert.Empty(t, ob.Bids)
	assert.Empty(t, ob.Asks)
	assert.False(t, tr.Fresh())

	_, ok = tr.OnTrade(domain.Trade{Price: dec("106")})
	assert.False(t, ok, "stale book must not drive classification")
}

func TestTracker_NoDataYetIsFreshButEmpty(t *testing.T) {
	tr, _ := newTestTracker(t)

	assert.True(t, tr.Fresh())
	_, ok := tr.BestBid()
	assert.False(t, ok)
	assert.Equal(t, domain.EmptyOrderBook(), tr.OrderBook())
	assert.True(t, tr.LastUpdate().IsZero())
}

func TestTracker_MalformedBookKeepsPreviousState(t *testing.T) {
	tr, clock := newTestTracker(t)
	require.NoError(t, tr.OnOrderBook(book("100", "105")))
	first := tr.LastUpdate()

	clock.Advance(30 * time.Second)
	err := tr.OnOrderBook(domain.OrderBook{Bids: []domain.Order{{Price: dec("101"), Amount: dec("1")}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedData))

	assert.Equal(t, first, tr.LastUpdate(), "rejected book must not refresh the timestamp")
	bid, ok := tr.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(dec("100")))

	clock.Advance(31 * time.Second)
	_, ok = tr.BestBid()
	assert.False(t, ok)
}

func TestTracker_OnTradeClassification(t *testing.T) {
	tests := []struct {
		name    string
		bid     string
		ask     string
		price   string
		want    domain.Direction
		wantAdd bool
	}{
		{name: "at bid is sell", bid: "100", ask: "105", price: "100", want: domain.DirectionSell, wantAdd: true},
		{name: "below bid is sell", bid: "100", ask: "105", price: "99.5", want: domain.DirectionSell, wantAdd: true},
		{name: "at ask is buy", bid: "100", ask: "105", price: "105", want: domain.DirectionBuy, wantAdd: true},
		{name: "above ask is buy", bid: "100", ask: "105", price: "106", want: domain.DirectionBuy, wantAdd: true},
		{name: "inside spread dropped", bid: "100", ask: "105", price: "102", want: domain.DirectionUnknown, wantAdd: false},
		// Known quirk: both comparisons hold and the later one wins.
		{name: "crossed book resolves to buy", bid: "100", ask: "100", price: "100", want: domain.DirectionBuy, wantAdd: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t)
			require.NoError(t, tr.OnOrderBook(book(tt.bid, tt.ask)))

			var got []domain.Trade
			_, err := tr.AddTradeListener(func(trade domain.Trade) { got = append(got, trade) })
			require.NoError(t, err)

			trade, ok := tr.OnTrade(domain.Trade{Price: dec(tt.price), Amount: dec("1")})
			assert.Equal(t, tt.wantAdd, ok)
			assert.Equal(t, tt.want, trade.Direction)

			if tt.wantAdd {
				require.Len(t, got, 1)
				assert.Equal(t, tt.want, got[0].Direction)
				require.Len(t, tr.RecentTrades(), 1)
			} else {
				assert.Empty(t, got)
				assert.Empty(t, tr.RecentTrades())
			}
		})
	}
}

func TestTracker_TradeWithoutBookIsDropped(t *testing.T) {
	tr, _ := newTestTracker(t)
	calls := 0
	_, err := tr.AddTradeListener(func(domain.Trade) { calls++ })
	require.NoError(t, err)

	_, ok := tr.OnTrade(domain.Trade{Price: dec("100")})
	assert.False(t, ok)
	assert.Zero(t, calls)
	assert.Empty(t, tr.RecentTrades())
}

func TestTracker_BookThenTradeScenario(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.OnOrderBook(book("100", "105")))
	_, ok := tr.OnTrade(domain.Trade{Price: dec("106"), Amount: dec("0.5")})
	require.True(t, ok)

	bid, _ := tr.BestBid()
	ask, _ := tr.BestAsk()
	assert.True(t, bid.Equal(dec("100")))
	assert.True(t, ask.Equal(dec("105")))
	recent := tr.RecentTrades()
	require.NotEmpty(t, recent)
	assert.Equal(t, "buy", recent[0].Direction.String())
}

func TestTracker_RecentTradesNewestFirstAndBounded(t *testing.T) {
	tr, _ := newTestTracker(t, WithRecentTrades(3))
	require.NoError(t, tr.OnOrderBook(book("100", "105")))

	for _, p := range []string{"106", "107", "108", "109"} {
		_, ok := tr.OnTrade(domain.Trade{Price: dec(p)})
		require.True(t, ok)
	}

	recent := tr.RecentTrades()
	require.Len(t, recent, 3)
	assert.True(t, recent[0].Price.Equal(dec("109")))
	assert.True(t, recent[1].Price.Equal(dec("108")))
	assert.True(t, recent[2].Price.Equal(dec("107")))
}

func TestTracker_ListenersRunInRegistrationOrder(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.OnOrderBook(book("100", "105")))

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, err := tr.AddTradeListener(func(domain.Trade) { order = append(order, name) })
		require.NoError(t, err)
	}

	tr.OnTrade(domain.Trade{Price: dec("100")})
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTracker_AddTradeListenerRejectsNil(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.AddTradeListener(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Zero(t, tr.Trades().Len())

	_, err = tr.Listen(EventTrade, "not a function")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	_, err = tr.Listen(EventTrade, func(domain.OrderBook) {})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Zero(t, tr.Trades().Len())
}

func TestTracker_OrderChangeIsObserveOnly(t *testing.T) {
	tr, _ := newTestTracker(t)

	var seen []domain.OrderChange
	_, err := tr.Listen(EventOrderChange, func(c domain.OrderChange) { seen = append(seen, c) })
	require.NoError(t, err)

	// No book: ignored silently, still observable.
	assert.False(t, tr.OnOrderChange(domain.OrderChange{Price: dec("102")}))

	require.NoError(t, tr.OnOrderBook(book("100", "105")))
	before := tr.OrderBook()

	assert.True(t, tr.OnOrderChange(domain.OrderChange{ID: 1, Price: dec("102"), Change: domain.ChangeCreated, Side: domain.SideBid}))
	assert.False(t, tr.OnOrderChange(domain.OrderChange{ID: 2, Price: dec("100"), Change: domain.ChangeDeleted, Side: domain.SideBid}))
	assert.False(t, tr.OnOrderChange(domain.OrderChange{ID: 3, Price: dec("110"), Change: domain.ChangeChanged, Side: domain.SideAsk}))

	assert.Equal(t, before, tr.OrderBook())
	assert.Len(t, seen, 4)
}

func TestTracker_OrderBookListenerGetsCopy(t *testing.T) {
	tr, _ := newTestTracker(t)

	var got domain.OrderBook
	_, err := tr.Listen(EventOrderBook, func(b domain.OrderBook) { got = b })
	require.NoError(t, err)

	require.NoError(t, tr.OnOrderBook(book("100", "105")))
	require.Len(t, got.Bids, 1)
	got.Bids[0].Price = dec("1")

	bid, _ := tr.BestBid()
	assert.True(t, bid.Equal(dec("100")))
	assert.True(t, tr.OrderBook().Bids[0].Price.Equal(dec("100")))
}

func TestTracker_FreshnessWindowOption(t *testing.T) {
	tr, clock := newTestTracker(t, WithFreshnessWindow(5*time.Second))
	require.NoError(t, tr.OnOrderBook(book("100", "105")))

	clock.Advance(5 * time.Second)
	assert.True(t, tr.Fresh())
	clock.Advance(time.Millisecond)
	assert.False(t, tr.Fresh())
	assert.Equal(t, 5*time.Second, tr.FreshnessWindow())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.DirectionSell, Classify(dec("100.00"), dec("100"), dec("105")))
	assert.Equal(t, domain.DirectionBuy, Classify(dec("105.0"), dec("100"), dec("105")))
	assert.Equal(t, domain.DirectionUnknown, Classify(dec("100.01"), dec("100"), dec("105")))
}

func TestTradeRing(t *testing.T) {
	r := newTradeRing(2)
	assert.Equal(t, 0, r.len())
	assert.Empty(t, r.snapshot())

	r.pushFront(domain.Trade{Price: dec("1")})
	r.pushFront(domain.Trade{Price: dec("2")})
	r.pushFront(domain.Trade{Price: dec("3")})

	assert.Equal(t, 2, r.len())
	snap := r.snapshot()
	assert.True(t, snap[0].Price.Equal(dec("3")))
	assert.True(t, snap[1].Price.Equal(dec("2")))
}
