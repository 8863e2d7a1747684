// Package pusher is a minimal client for the Pusher websocket protocol, used
// to receive public channel events from the exchange's push feed.
package pusher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

type subscription struct {
	handlers []boundHandler
}

type boundHandler struct {
	id uint64
	fn Handler
}

// Client is a Pusher websocket client. Channel subscriptions are reference
// counted: the first Subscribe for a channel sends pusher:subscribe and the
// last Unsubscribe sends pusher:unsubscribe, so several consumers can share
// one socket without opening a channel twice. Subscriptions made before
// Connect, or lost to a reconnect, are (re)sent once the socket is up.
type Client struct {
	url    string
	logger *slog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	closed   bool
	socketID string
	subs     map[string]*subscription
	nextID   uint64

	writeMu sync.Mutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewClient creates a client for the given socket URL (see BuildURL).
func NewClient(wsURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    wsURL,
		logger: logger.With(slog.String("component", "pusher")),
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
}

// Connect dials the socket, starts the read and ping loops and restores all
// active subscriptions. If the connection later drops, the client reconnects
// with exponential backoff until Close is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return fmt.Errorf("pusher: connect: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	// The handshake runs without c.mu so Subscribe and friends stay live.
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("pusher: connect: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		conn.Close()
		return fmt.Errorf("pusher: connect: %w", domain.ErrWSDisconnect)
	}
	if c.conn != nil {
		// A concurrent Connect won.
		conn.Close()
		return nil
	}

	c.conn = conn
	c.socketID = ""

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for channel := range c.subs {
		if err := c.send(conn, EventSubscribe, subscribePayload{Channel: channel}); err != nil {
			conn.Close()
			c.conn = nil
			return fmt.Errorf("pusher: restore subscription %s: %w", channel, err)
		}
	}

	stop := make(chan struct{})
	go c.readLoop(conn, stop)
	go c.pingLoop(conn, stop)

	c.logger.Info("pusher connected", slog.Int("channels", len(c.subs)))
	return nil
}

// Subscribe registers h for every event on channel and returns a Binding to
// remove it. pusher:subscribe is only sent for the first binding of a channel.
func (c *Client) Subscribe(channel string, h Handler) (Binding, error) {
	if channel == "" || h == nil {
		return Binding{}, fmt.Errorf("pusher: subscribe: %w: channel and handler are required", domain.ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Binding{}, fmt.Errorf("pusher: subscribe %s: %w", channel, domain.ErrWSDisconnect)
	}

	c.nextID++
	b := Binding{Channel: channel, ID: c.nextID}

	sub, ok := c.subs[channel]
	if !ok {
		if c.conn != nil {
			if err := c.send(c.conn, EventSubscribe, subscribePayload{Channel: channel}); err != nil {
				return Binding{}, fmt.Errorf("pusher: subscribe %s: %w", channel, err)
			}
		}
		sub = &subscription{}
		c.subs[channel] = sub
		c.logger.Debug("channel subscribed", slog.String("channel", channel))
	}
	sub.handlers = append(sub.handlers, boundHandler{id: b.ID, fn: h})
	return b, nil
}

// Unsubscribe removes a binding. pusher:unsubscribe is sent when the last
// binding of the channel goes away.
func (c *Client) Unsubscribe(b Binding) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[b.Channel]
	if !ok {
		return fmt.Errorf("pusher: unsubscribe %s: %w", b.Channel, domain.ErrNotFound)
	}

	idx := -1
	for i, h := range sub.handlers {
		if h.id == b.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("pusher: unsubscribe %s/%d: %w", b.Channel, b.ID, domain.ErrNotFound)
	}
	sub.handlers = append(sub.handlers[:idx:idx], sub.handlers[idx+1:]...)
	if len(sub.handlers) > 0 {
		return nil
	}

	delete(c.subs, b.Channel)
	c.logger.Debug("channel unsubscribed", slog.String("channel", b.Channel))
	if c.conn == nil || c.closed {
		return nil
	}
	if err := c.send(c.conn, EventUnsubscribe, subscribePayload{Channel: b.Channel}); err != nil {
		return fmt.Errorf("pusher: unsubscribe %s: %w", b.Channel, err)
	}
	return nil
}

// Channels returns the number of channels with at least one binding.
func (c *Client) Channels() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// SocketID returns the id assigned by the server, or "" while connecting.
func (c *Client) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Close shuts down the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()
		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// send writes one protocol event. data may be nil.
func (c *Client) send(conn *websocket.Conn, name string, data any) error {
	ev := Event{Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		ev.Data = raw
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// readLoop reads frames from conn and dispatches them until the connection
// fails, then hands over to reconnect.
func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			select {
			case <-c.done:
				return
			default:
			}

			c.logger.Warn("pusher read failed, reconnecting", slog.String("error", err.Error()))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.reconnect()
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(conn, message)
	}
}

// pingLoop sends periodic ping frames on conn until its read loop exits.
func (c *Client) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(conn *websocket.Conn, raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Debug("dropping unparseable frame", slog.Int("len", len(raw)))
		return
	}

	switch ev.Name {
	case EventConnectionEstablished:
		var est connectionEstablished
		if payload, err := ev.Payload(); err == nil {
			_ = json.Unmarshal(payload, &est)
		}
		c.mu.Lock()
		c.socketID = est.SocketID
		c.mu.Unlock()
		c.logger.Info("pusher connection established",
			slog.String("socket_id", est.SocketID),
			slog.Int("activity_timeout", est.ActivityTimeout),
		)
		return
	case EventPing:
		if err := c.send(conn, EventPong, nil); err != nil {
			c.logger.Warn("pusher pong failed", slog.String("error", err.Error()))
		}
		return
	case EventPong:
		return
	case EventError:
		var perr errorPayload
		if payload, err := ev.Payload(); err == nil {
			_ = json.Unmarshal(payload, &perr)
		}
		attrs := []any{slog.String("message", perr.Message)}
		if perr.Code != nil {
			attrs = append(attrs, slog.Int("code", *perr.Code))
		}
		c.logger.Warn("pusher error", attrs...)
		return
	case EventSubscriptionSucceeded:
		c.logger.Debug("subscription succeeded", slog.String("channel", ev.Channel))
		return
	}

	if ev.Channel == "" {
		return
	}

	c.mu.RLock()
	var handlers []boundHandler
	if sub, ok := c.subs[ev.Channel]; ok {
		handlers = make([]boundHandler, len(sub.handlers))
		copy(handlers, sub.handlers)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h.fn(ev)
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff. It blocks until successful or the client is closed.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			return
		}
		c.logger.Warn("pusher reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
