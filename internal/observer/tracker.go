package observer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// Event names exposed by the tracker's registry.
const (
	EventTrade       = "trade"
	EventOrderBook   = "order_book"
	EventOrderChange = "order_change"
)

const (
	// DefaultFreshnessWindow is how long an order book is trusted after its
	// last successful update.
	DefaultFreshnessWindow = 60 * time.Second
	// DefaultRecentTrades bounds the recent-trades history.
	DefaultRecentTrades = 1000
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithFreshnessWindow overrides DefaultFreshnessWindow.
func WithFreshnessWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.freshness = d
		}
	}
}

// WithRecentTrades overrides DefaultRecentTrades.
func WithRecentTrades(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.recentLimit = n
		}
	}
}

// Tracker keeps a best-effort view of one market: the last order book, the
// best bid and ask derived from it, and a bounded newest-first history of
// classified trades. State is mutated by the feed goroutine and may be read
// from any goroutine. Listeners run synchronously on the feed goroutine after
// the state lock has been released.
type Tracker struct {
	logger      *slog.Logger
	now         func() time.Time
	freshness   time.Duration
	recentLimit int

	mu         sync.RWMutex
	book       *domain.OrderBook
	bestBid    decimal.Decimal
	bestAsk    decimal.Decimal
	lastUpdate time.Time
	recent     *tradeRing

	registry *Registry
	trades   *Topic[domain.Trade]
	books    *Topic[domain.OrderBook]
	changes  *Topic[domain.OrderChange]
}

// NewTracker creates a Tracker with an empty state.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:      logger.With(slog.String("component", "tracker")),
		now:         time.Now,
		freshness:   DefaultFreshnessWindow,
		recentLimit: DefaultRecentTrades,
		trades:      NewTopic[domain.Trade](EventTrade),
		books:       NewTopic[domain.OrderBook](EventOrderBook),
		changes:     NewTopic[domain.OrderChange](EventOrderChange),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.recent = newTradeRing(t.recentLimit)
	t.registry = NewRegistry(Hooks{}, t.trades, t.books, t.changes)
	return t
}

// Registry returns the tracker's listener registry.
func (t *Tracker) Registry() *Registry { return t.registry }

// Trades is the topic of classified trades.
func (t *Tracker) Trades() *Topic[domain.Trade] { return t.trades }

// OrderBooks is the topic of accepted order book snapshots.
func (t *Tracker) OrderBooks() *Topic[domain.OrderBook] { return t.books }

// OrderChanges is the topic of observed incremental order changes.
func (t *Tracker) OrderChanges() *Topic[domain.OrderChange] { return t.changes }

// Listen registers fn for one of EventTrade, EventOrderBook or
// EventOrderChange.
func (t *Tracker) Listen(event string, fn any) (ListenerID, error) {
	return t.registry.Listen(event, fn)
}

// Unlisten removes a listener previously returned by Listen.
func (t *Tracker) Unlisten(event string, id ListenerID) error {
	return t.registry.Unlisten(event, id)
}

// AddTradeListener registers fn to receive every classified trade.
func (t *Tracker) AddTradeListener(fn func(domain.Trade)) (ListenerID, error) {
	return t.trades.Listen(fn)
}

// OnOrderBook replaces the current book. A book with an empty side is
// rejected with domain.ErrMalformedData and leaves the previous state, and
// its freshness, untouched.
func (t *Tracker) OnOrderBook(book domain.OrderBook) error {
	if book.IsEmpty() {
		t.logger.Error("discarding order book",
			slog.Int("bids", len(book.Bids)),
			slog.Int("asks", len(book.Asks)),
		)
		return fmt.Errorf("observer: order book: %w: empty side", domain.ErrMalformedData)
	}

	stored := book.Clone()
	t.mu.Lock()
	t.book = &stored
	t.bestBid = stored.Bids[0].Price
	t.bestAsk = stored.Asks[0].Price
	t.lastUpdate = t.now()
	t.mu.Unlock()

	t.books.Notify(stored.Clone())
	return nil
}

// OnTrade classifies trade against the fresh best bid and ask. Trades that
// cannot be classified are dropped and reported with ok == false.
func (t *Tracker) OnTrade(trade domain.Trade) (domain.Trade, bool) {
	t.mu.Lock()
	bid, ask, ok := t.quotesLocked()
	if !ok {
		t.mu.Unlock()
		t.logger.Debug("dropping trade, no fresh book", slog.String("price", trade.Price.String()))
		return trade, false
	}
	trade.Direction = Classify(trade.Price, bid, ask)
	if !trade.Classified() {
		t.mu.Unlock()
		t.logger.Debug("dropping trade inside spread",
			slog.String("price", trade.Price.String()),
			slog.String("bid", bid.String()),
			slog.String("ask", ask.String()),
		)
		return trade, false
	}
	t.recent.pushFront(trade)
	t.mu.Unlock()

	t.trades.Notify(trade)
	return trade, true
}

// OnOrderChange observes an incremental order update. The current book is
// not modified. It reports whether the change price lies strictly inside the
// fresh spread; with no fresh book it returns false without logging.
func (t *Tracker) OnOrderChange(change domain.OrderChange) bool {
	t.mu.RLock()
	bid, ask, ok := t.quotesLocked()
	t.mu.RUnlock()

	inside := ok && change.Price.GreaterThan(bid) && change.Price.LessThan(ask)
	if inside {
		t.logger.Debug("order change inside spread",
			slog.Int64("id", change.ID),
			slog.String("change", string(change.Change)),
			slog.String("price", change.Price.String()),
		)
	}
	t.changes.Notify(change)
	return inside
}

// BestBid returns the best bid when the book is fresh.
func (t *Tracker) BestBid() (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bid, _, ok := t.quotesLocked()
	return bid, ok
}

// BestAsk returns the best ask when the book is fresh.
func (t *Tracker) BestAsk() (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ask, ok := t.quotesLocked()
	return ask, ok
}

// BBO returns both best prices when the book is fresh.
func (t *Tracker) BBO() (domain.BBO, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bid, ask, ok := t.quotesLocked()
	return domain.BBO{BestBid: bid, BestAsk: ask}, ok
}

// OrderBook returns a copy of the current book, or an empty book when there
// is none or it has gone stale.
func (t *Tracker) OrderBook() domain.OrderBook {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.book == nil || !t.freshLocked() {
		return domain.EmptyOrderBook()
	}
	return t.book.Clone()
}

// RecentTrades returns the classified trade history, newest first.
func (t *Tracker) RecentTrades() []domain.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recent.snapshot()
}

// Fresh reports whether the order book is within the freshness window. A
// tracker that has never seen a book is fresh.
func (t *Tracker) Fresh() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.freshLocked()
}

// LastUpdate returns the time of the last accepted order book, or the zero
// time if none was accepted yet.
func (t *Tracker) LastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastUpdate
}

// FreshnessWindow returns the configured window.
func (t *Tracker) FreshnessWindow() time.Duration { return t.freshness }

func (t *Tracker) freshLocked() bool {
	if t.lastUpdate.IsZero() {
		return true
	}
	return t.now().Sub(t.lastUpdate) <= t.freshness
}

func (t *Tracker) quotesLocked() (bid, ask decimal.Decimal, ok bool) {
	if t.book == nil || !t.freshLocked() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return t.bestBid, t.bestAsk, true
}

// Classify derives the aggressor side of a trade at price. At or below the
// bid is a sell, at or above the ask is a buy, checked in that order so a
// crossed book with bid == ask == price resolves to buy. Anything strictly
// inside the spread is DirectionUnknown.
func Classify(price, bid, ask decimal.Decimal) domain.Direction {
	dir := domain.DirectionUnknown
	if price.LessThanOrEqual(bid) {
		dir = domain.DirectionSell
	}
	if price.GreaterThanOrEqual(ask) {
		dir = domain.DirectionBuy
	}
	return dir
}
