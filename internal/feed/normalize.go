package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// flexInt64 unmarshals from a JSON number or a numeric string, since the feed
// sends timestamps as strings and ids as numbers.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" {
		return fmt.Errorf("empty integer")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	// Some timestamps carry a fractional part.
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt64(d.IntPart())
	return nil
}

// flexBool unmarshals order_type style flags from a JSON bool, a number or a
// numeric string. Any non-zero number is true.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch string(raw) {
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	s := strings.Trim(string(raw), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse flag %q: %w", s, err)
	}
	*f = flexBool(!d.IsZero())
	return nil
}

type tradeMessage struct {
	ID     *flexInt64       `json:"id"`
	Price  *decimal.Decimal `json:"price"`
	Amount *decimal.Decimal `json:"amount"`
}

type orderBookMessage struct {
	Bids      *[][]*decimal.Decimal `json:"bids"`
	Asks      *[][]*decimal.Decimal `json:"asks"`
	Timestamp *flexInt64            `json:"timestamp"`
}

type orderChangeMessage struct {
	ID        *flexInt64       `json:"id"`
	Price     *decimal.Decimal `json:"price"`
	Amount    *decimal.Decimal `json:"amount"`
	Datetime  *flexInt64       `json:"datetime"`
	OrderType *flexBool        `json:"order_type"`
}

// ParseTrade decodes a live trade payload. The feed carries no trade time,
// so the receipt time is used.
func ParseTrade(payload []byte, received time.Time) (domain.Trade, error) {
	var msg tradeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.Trade{}, fmt.Errorf("feed: trade: %w: %v", domain.ErrMalformedData, err)
	}
	if msg.Price == nil || msg.Amount == nil {
		return domain.Trade{}, fmt.Errorf("feed: trade: %w: price and amount are required", domain.ErrMalformedData)
	}

	trade := domain.Trade{
		Price:     *msg.Price,
		Amount:    *msg.Amount,
		Timestamp: domain.EpochSeconds(received),
	}
	if msg.ID != nil {
		id := int64(*msg.ID)
		trade.ID = &id
	}
	return trade, nil
}

// ParseOrderBook decodes an order book snapshot. Level order is preserved;
// either side may be empty, which the tracker then rejects.
func ParseOrderBook(payload []byte) (domain.OrderBook, error) {
	var msg orderBookMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.OrderBook{}, fmt.Errorf("feed: order book: %w: %v", domain.ErrMalformedData, err)
	}
	if msg.Bids == nil || msg.Asks == nil {
		return domain.OrderBook{}, fmt.Errorf("feed: order book: %w: bids and asks are required", domain.ErrMalformedData)
	}

	bids, err := parseLevels("bids", *msg.Bids)
	if err != nil {
		return domain.OrderBook{}, err
	}
	asks, err := parseLevels("asks", *msg.Asks)
	if err != nil {
		return domain.OrderBook{}, err
	}
	book := domain.OrderBook{Bids: bids, Asks: asks}
	if msg.Timestamp != nil {
		book.Timestamp = int64(*msg.Timestamp)
	}
	return book, nil
}

func parseLevels(side string, raw [][]*decimal.Decimal) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(raw))
	for i, level := range raw {
		if len(level) < 2 || level[0] == nil || level[1] == nil {
			return nil, fmt.Errorf("feed: order book: %w: %s[%d] needs price and amount", domain.ErrMalformedData, side, i)
		}
		out = append(out, domain.Order{Price: *level[0], Amount: *level[1]})
	}
	return out, nil
}

// changeKinds maps live order event names to change kinds.
var changeKinds = map[string]domain.ChangeKind{
	"order_created": domain.ChangeCreated,
	"order_deleted": domain.ChangeDeleted,
	"order_changed": domain.ChangeChanged,
}

// ParseOrderChange decodes a live order event. Events other than
// order_created, order_deleted and order_changed report ok == false with a
// nil error. order_type 1 (or true) is the ask side, 0 (or false) the bid.
func ParseOrderChange(event string, payload []byte) (change domain.OrderChange, ok bool, err error) {
	kind, known := changeKinds[event]
	if !known {
		return domain.OrderChange{}, false, nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return domain.OrderChange{}, false, fmt.Errorf("feed: order change: %w: empty %s payload", domain.ErrMalformedData, event)
	}

	var msg orderChangeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.OrderChange{}, false, fmt.Errorf("feed: order change: %w: %v", domain.ErrMalformedData, err)
	}
	if msg.Price == nil || msg.Amount == nil || msg.Datetime == nil || msg.OrderType == nil {
		return domain.OrderChange{}, false, fmt.Errorf("feed: order change: %w: price, amount, datetime and order_type are required", domain.ErrMalformedData)
	}

	change = domain.OrderChange{
		Price:     *msg.Price,
		Amount:    *msg.Amount,
		Change:    kind,
		Side:      domain.SideBid,
		Timestamp: int64(*msg.Datetime),
	}
	if *msg.OrderType {
		change.Side = domain.SideAsk
	}
	if msg.ID != nil {
		change.ID = int64(*msg.ID)
	}
	return change, true, nil
}
