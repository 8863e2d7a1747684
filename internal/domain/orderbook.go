package domain

import "github.com/shopspring/decimal"

// Order is a single price+amount level in an order book.
type Order struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderBook is a full snapshot of resting bids and asks. Bids are ordered by
// descending price and asks by ascending price, so index 0 of each side is the
// best quote. Snapshots replace the previous book wholesale.
type OrderBook struct {
	Bids      []Order `json:"bids"`
	Asks      []Order `json:"asks"`
	Timestamp int64   `json:"timestamp,omitempty"` // epoch seconds, 0 when the feed omits it
}

// EmptyOrderBook returns a book with non-nil, zero-length sides so callers can
// always range over or len() the result.
func EmptyOrderBook() OrderBook {
	return OrderBook{Bids: []Order{}, Asks: []Order{}}
}

// IsEmpty reports whether either side of the book has no levels.
func (b OrderBook) IsEmpty() bool {
	return len(b.Bids) == 0 || len(b.Asks) == 0
}

// Clone returns a deep copy of the book.
func (b OrderBook) Clone() OrderBook {
	out := OrderBook{
		Bids:      make([]Order, len(b.Bids)),
		Asks:      make([]Order, len(b.Asks)),
		Timestamp: b.Timestamp,
	}
	copy(out.Bids, b.Bids)
	copy(out.Asks, b.Asks)
	return out
}

// Side identifies which side of the book an order rests on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// ChangeKind is the kind of incremental change on the live order stream.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeDeleted ChangeKind = "deleted"
	ChangeChanged ChangeKind = "changed"
)

// OrderChange is an incremental update from the live order stream. It is
// observed by the tracker but never merged into the current OrderBook.
type OrderChange struct {
	ID        int64           `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Change    ChangeKind      `json:"change"`
	Side      Side            `json:"side"`
	Timestamp int64           `json:"timestamp"`
}

// BBO is the best bid and offer derived from a fresh order book.
type BBO struct {
	BestBid decimal.Decimal `json:"best_bid"`
	BestAsk decimal.Decimal `json:"best_ask"`
}

// Spread returns ask minus bid. Zero or negative means the book is crossed.
func (b BBO) Spread() decimal.Decimal {
	return b.BestAsk.Sub(b.BestBid)
}

// Mid returns the midpoint between bid and ask.
func (b BBO) Mid() decimal.Decimal {
	return b.BestBid.Add(b.BestAsk).Div(decimal.NewFromInt(2))
}
