// Package feed adapts the exchange push feed to the observer: it owns the
// channel subscriptions, decodes channel events into domain values and
// republishes them as raw (unclassified) events.
package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/observer"
	"github.com/alanyoungcy/coinwatch/internal/platform/pusher"
)

// Push feed channel names for the default pair.
const (
	ChannelTrades    = "live_trades"
	ChannelOrderBook = "order_book"
	ChannelOrders    = "live_orders"
)

// DefaultPair uses the unsuffixed channel names.
const DefaultPair = "btcusd"

// Transport is the subscribe-and-receive primitive of the push feed.
// *pusher.Client implements it.
type Transport interface {
	Subscribe(channel string, h pusher.Handler) (pusher.Binding, error)
	Unsubscribe(b pusher.Binding) error
}

// ChannelName returns the channel for pair; pairs other than DefaultPair get
// a "_<pair>" suffix.
func ChannelName(base, pair string) string {
	if pair == "" || pair == DefaultPair {
		return base
	}
	return base + "_" + pair
}

// Stats counts decoded and rejected feed events.
type Stats struct {
	Trades       uint64 `json:"trades"`
	OrderBooks   uint64 `json:"order_books"`
	OrderChanges uint64 `json:"order_changes"`
	Malformed    uint64 `json:"malformed"`
}

// BitstampStream publishes Bitstamp push feed events as observer topics.
// A channel is subscribed on the transport when its topic gains a first
// listener and released when the last listener leaves.
type BitstampStream struct {
	transport Transport
	pair      string
	logger    *slog.Logger
	now       func() time.Time

	registry *observer.Registry
	trades   *observer.Topic[domain.Trade]
	books    *observer.Topic[domain.OrderBook]
	changes  *observer.Topic[domain.OrderChange]

	mu       sync.Mutex
	bindings map[string]pusher.Binding

	nTrades    atomic.Uint64
	nBooks     atomic.Uint64
	nChanges   atomic.Uint64
	nMalformed atomic.Uint64
}

// NewBitstampStream creates a stream for pair over transport. Nothing is
// subscribed until a listener is added.
func NewBitstampStream(transport Transport, pair string, logger *slog.Logger) *BitstampStream {
	if logger == nil {
		logger = slog.Default()
	}
	if pair == "" {
		pair = DefaultPair
	}
	s := &BitstampStream{
		transport: transport,
		pair:      pair,
		logger:    logger.With(slog.String("component", "bitstamp_stream"), slog.String("pair", pair)),
		now:       time.Now,
		trades:    observer.NewTopic[domain.Trade](observer.EventTrade),
		books:     observer.NewTopic[domain.OrderBook](observer.EventOrderBook),
		changes:   observer.NewTopic[domain.OrderChange](observer.EventOrderChange),
		bindings:  make(map[string]pusher.Binding),
	}
	s.registry = observer.NewRegistry(observer.Hooks{
		OnActivate:   s.activate,
		OnDeactivate: s.deactivate,
	}, s.trades, s.books, s.changes)
	return s
}

// Pair returns the currency pair this stream follows.
func (s *BitstampStream) Pair() string { return s.pair }

// Listen registers fn for observer.EventTrade (func(domain.Trade)),
// observer.EventOrderBook (func(domain.OrderBook)) or
// observer.EventOrderChange (func(domain.OrderChange)).
func (s *BitstampStream) Listen(event string, fn any) (observer.ListenerID, error) {
	return s.registry.Listen(event, fn)
}

// Unlisten removes a listener.
func (s *BitstampStream) Unlisten(event string, id observer.ListenerID) error {
	return s.registry.Unlisten(event, id)
}

// Stats returns event counters since creation.
func (s *BitstampStream) Stats() Stats {
	return Stats{
		Trades:       s.nTrades.Load(),
		OrderBooks:   s.nBooks.Load(),
		OrderChanges: s.nChanges.Load(),
		Malformed:    s.nMalformed.Load(),
	}
}

// Close releases every open channel subscription.
func (s *BitstampStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for event, b := range s.bindings {
		if err := s.transport.Unsubscribe(b); err != nil {
			errs = append(errs, err)
		}
		delete(s.bindings, event)
	}
	return errors.Join(errs...)
}

func (s *BitstampStream) channelFor(event string) (string, pusher.Handler, error) {
	switch event {
	case observer.EventTrade:
		return ChannelName(ChannelTrades, s.pair), s.onTradeEvent, nil
	case observer.EventOrderBook:
		return ChannelName(ChannelOrderBook, s.pair), s.onOrderBookEvent, nil
	case observer.EventOrderChange:
		return ChannelName(ChannelOrders, s.pair), s.onOrderEvent, nil
	default:
		return "", nil, fmt.Errorf("feed: %w: no channel for %q", domain.ErrInvalidArgument, event)
	}
}

func (s *BitstampStream) activate(event string) error {
	channel, handler, err := s.channelFor(event)
	if err != nil {
		return err
	}
	b, err := s.transport.Subscribe(channel, handler)
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", channel, err)
	}

	s.mu.Lock()
	s.bindings[event] = b
	s.mu.Unlock()
	s.logger.Info("channel activated", slog.String("channel", channel))
	return nil
}

func (s *BitstampStream) deactivate(event string) error {
	s.mu.Lock()
	b, ok := s.bindings[event]
	delete(s.bindings, event)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.transport.Unsubscribe(b); err != nil {
		return fmt.Errorf("feed: unsubscribe %s: %w", b.Channel, err)
	}
	s.logger.Info("channel deactivated", slog.String("channel", b.Channel))
	return nil
}

func (s *BitstampStream) onTradeEvent(ev pusher.Event) {
	if ev.Name != "trade" {
		return
	}
	payload, err := ev.Payload()
	if err != nil {
		s.malformed(ev, err)
		return
	}
	trade, err := ParseTrade(payload, s.now())
	if err != nil {
		s.malformed(ev, err)
		return
	}
	s.nTrades.Add(1)
	s.trades.Notify(trade)
}

func (s *BitstampStream) onOrderBookEvent(ev pusher.Event) {
	if ev.Name != "data" {
		return
	}
	payload, err := ev.Payload()
	if err != nil {
		s.malformed(ev, err)
		return
	}
	book, err := ParseOrderBook(payload)
	if err != nil {
		s.malformed(ev, err)
		return
	}
	s.nBooks.Add(1)
	s.books.Notify(book)
}

func (s *BitstampStream) onOrderEvent(ev pusher.Event) {
	payload, err := ev.Payload()
	if err != nil {
		s.malformed(ev, err)
		return
	}
	change, ok, err := ParseOrderChange(ev.Name, payload)
	if err != nil {
		s.malformed(ev, err)
		return
	}
	if !ok {
		return
	}
	s.nChanges.Add(1)
	s.changes.Notify(change)
}

func (s *BitstampStream) malformed(ev pusher.Event, err error) {
	s.nMalformed.Add(1)
	s.logger.Warn("dropping malformed event",
		slog.String("channel", ev.Channel),
		slog.String("event", ev.Name),
		slog.String("error", err.Error()),
	)
}
