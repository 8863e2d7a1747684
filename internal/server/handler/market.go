package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// MarketView is the live market state read by the handlers.
type MarketView interface {
	BBO() (domain.BBO, bool)
	OrderBook() domain.OrderBook
	RecentTrades() []domain.Trade
	Fresh() bool
	LastUpdate() time.Time
}

// TradeHistory lists persisted trades.
type TradeHistory interface {
	ListRecent(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// TickerCache returns the last polled ticker, if any.
type TickerCache interface {
	LastTicker() (domain.Ticker, bool)
}

// RESTClient is the exchange REST API.
type RESTClient interface {
	Ticker(ctx context.Context) (domain.Ticker, error)
	Transactions(ctx context.Context, tf domain.Timeframe) ([]domain.Trade, error)
	EURUSD(ctx context.Context) (domain.ConversionRate, error)
}

// MarketHandler serves the /api/market endpoints.
type MarketHandler struct {
	pair    string
	view    MarketView
	history TradeHistory
	tickers TickerCache
	rest    RESTClient
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. history, tickers and rest may be
// nil; the endpoints that need them then answer 503.
func NewMarketHandler(
	pair string,
	view MarketView,
	history TradeHistory,
	tickers TickerCache,
	rest RESTClient,
	logger *slog.Logger,
) *MarketHandler {
	return &MarketHandler{
		pair:    pair,
		view:    view,
		history: history,
		tickers: tickers,
		rest:    rest,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

type bboResponse struct {
	Pair       string    `json:"pair"`
	BestBid    string    `json:"best_bid"`
	BestAsk    string    `json:"best_ask"`
	Spread     string    `json:"spread"`
	Mid        string    `json:"mid"`
	LastUpdate time.Time `json:"last_update"`
}

// GetBBO returns the best bid and ask.
// GET /api/market/bbo
func (h *MarketHandler) GetBBO(w http.ResponseWriter, r *http.Request) {
	bbo, ok := h.view.BBO()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no fresh order book")
		return
	}
	writeJSON(w, http.StatusOK, bboResponse{
		Pair:       h.pair,
		BestBid:    bbo.BestBid.String(),
		BestAsk:    bbo.BestAsk.String(),
		Spread:     bbo.Spread().String(),
		Mid:        bbo.Mid().String(),
		LastUpdate: h.view.LastUpdate().UTC(),
	})
}

// GetOrderBook returns the current book, truncated to ?depth= levels per
// side. A stale book is returned empty with fresh=false.
// GET /api/market/orderbook
func (h *MarketHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book := h.view.OrderBook()
	depth := intParam(r, "depth", 50, 1000)
	if len(book.Bids) > depth {
		book.Bids = book.Bids[:depth]
	}
	if len(book.Asks) > depth {
		book.Asks = book.Asks[:depth]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair":  h.pair,
		"fresh": h.view.Fresh(),
		"book":  book,
	})
}

// ListTrades returns classified trades, newest first. ?source=db reads the
// persisted history instead of the in-memory buffer.
// GET /api/market/trades
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if r.URL.Query().Get("source") == "db" {
		if h.history == nil {
			writeError(w, http.StatusServiceUnavailable, "trade history not configured")
			return
		}
		records, err := h.history.ListRecent(r.Context(), h.pair, opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
			writeError(w, statusFor(err), "failed to list trades")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pair": h.pair, "trades": records})
		return
	}

	trades := h.view.RecentTrades()
	if opts.Offset >= len(trades) {
		trades = []domain.Trade{}
	} else {
		trades = trades[opts.Offset:]
	}
	if len(trades) > opts.Limit {
		trades = trades[:opts.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"pair": h.pair, "trades": trades})
}

// GetTicker returns the last polled ticker, fetching it when none is cached.
// GET /api/market/ticker
func (h *MarketHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	if h.tickers != nil {
		if t, ok := h.tickers.LastTicker(); ok {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	if h.rest == nil {
		writeError(w, http.StatusServiceUnavailable, "ticker not available")
		return
	}
	t, err := h.rest.Ticker(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ticker fetch failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to fetch ticker")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTransactions proxies the exchange transaction list for ?time=minute
// or hour (the default).
// GET /api/market/transactions
func (h *MarketHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.rest == nil {
		writeError(w, http.StatusServiceUnavailable, "rest api not configured")
		return
	}
	tf := domain.Timeframe(r.URL.Query().Get("time"))
	if tf == "" {
		tf = domain.TimeframeHour
	}
	trades, err := h.rest.Transactions(r.Context(), tf)
	if err != nil {
		writeError(w, statusFor(err), fmt.Sprintf("failed to list transactions: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pair": h.pair, "time": tf, "trades": trades})
}

// GetConversionRate returns the EUR/USD rate.
// GET /api/market/eurusd
func (h *MarketHandler) GetConversionRate(w http.ResponseWriter, r *http.Request) {
	if h.rest == nil {
		writeError(w, http.StatusServiceUnavailable, "rest api not configured")
		return
	}
	rate, err := h.rest.EURUSD(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "failed to fetch conversion rate")
		return
	}
	writeJSON(w, http.StatusOK, rate)
}
