package domain

import "github.com/shopspring/decimal"

// Ticker is the 24h summary returned by the exchange REST API.
type Ticker struct {
	Pair      string           `json:"pair"`
	Last      decimal.Decimal  `json:"last"`
	High      decimal.Decimal  `json:"high"`
	Low       decimal.Decimal  `json:"low"`
	Bid       decimal.Decimal  `json:"bid"`
	Ask       decimal.Decimal  `json:"ask"`
	Volume    decimal.Decimal  `json:"volume"`
	VWAP      *decimal.Decimal `json:"vwap,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// ConversionRate is a fiat conversion quote (e.g. EUR/USD).
type ConversionRate struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// Timeframe selects how far back the REST transactions call looks.
type Timeframe string

const (
	TimeframeMinute Timeframe = "minute"
	TimeframeHour   Timeframe = "hour"
)

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	return tf == TimeframeMinute || tf == TimeframeHour
}
