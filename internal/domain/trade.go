package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the aggressor side of an executed trade. The push feed does
// not label trades, so it stays DirectionUnknown until classified.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionBuy
	DirectionSell
)

// String returns "buy", "sell" or "" for an unclassified trade.
func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return ""
	}
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "buy":
		return DirectionBuy, nil
	case "sell":
		return DirectionSell, nil
	case "":
		return DirectionUnknown, nil
	default:
		return DirectionUnknown, fmt.Errorf("%w: direction %q", ErrInvalidArgument, s)
	}
}

// MarshalJSON encodes the direction as its string form, or null when unset.
func (d Direction) MarshalJSON() ([]byte, error) {
	if d == DirectionUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "buy", "sell" or null.
func (d *Direction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DirectionUnknown
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Trade is a single executed trade from the push feed.
type Trade struct {
	ID        *int64          `json:"id,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp float64         `json:"timestamp"` // epoch seconds, receipt time for streamed trades
	Direction Direction       `json:"direction"`
}

// Classified reports whether the trade has been given a direction.
func (t Trade) Classified() bool {
	return t.Direction != DirectionUnknown
}

// Time converts the float epoch timestamp into a time.Time.
func (t Trade) Time() time.Time {
	sec := int64(t.Timestamp)
	nsec := int64((t.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// EpochSeconds converts a wall-clock instant to the float epoch form used by
// Trade.Timestamp.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// TradeRecord is a classified trade as persisted by the trade store.
type TradeRecord struct {
	RowID      int64           `json:"row_id"`
	Exchange   string          `json:"exchange"`
	Pair       string          `json:"pair"`
	TradeID    *int64          `json:"trade_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Direction  Direction       `json:"direction"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// NewTradeRecord stamps a classified trade with its market.
func NewTradeRecord(exchange, pair string, t Trade) TradeRecord {
	return TradeRecord{
		Exchange:   exchange,
		Pair:       pair,
		TradeID:    t.ID,
		Price:      t.Price,
		Amount:     t.Amount,
		Direction:  t.Direction,
		ExecutedAt: t.Time(),
	}
}
