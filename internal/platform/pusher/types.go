package pusher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// Protocol event names.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventError                 = "pusher:error"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventSubscribe             = "pusher:subscribe"
	EventUnsubscribe           = "pusher:unsubscribe"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

// ProtocolVersion is the Pusher wire protocol spoken by the client.
const ProtocolVersion = 7

// Event is one frame on the Pusher socket.
type Event struct {
	Name    string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Payload returns the event data as raw JSON. Pusher delivers channel data
// as a JSON-encoded string, so a string payload is unwrapped once; object
// payloads are returned as-is.
func (e Event) Payload() ([]byte, error) {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != '"' {
		return data, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("pusher: decode payload of %q: %w", e.Name, err)
	}
	return []byte(s), nil
}

// Handler receives channel events. Handlers run on the connection's read
// goroutine and must not block.
type Handler func(Event)

// Binding is returned by Subscribe and identifies one handler on a channel.
type Binding struct {
	Channel string
	ID      uint64
}

type subscribePayload struct {
	Channel string `json:"channel"`
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    *int   `json:"code"`
}

// BuildURL returns the socket URL for an application key. An empty cluster
// selects the legacy ws.pusherapp.com host.
func BuildURL(cluster, key, clientName, version string) string {
	host := "ws.pusherapp.com"
	if cluster != "" {
		host = "ws-" + cluster + ".pusher.com"
	}
	q := url.Values{}
	q.Set("protocol", fmt.Sprint(ProtocolVersion))
	if clientName != "" {
		q.Set("client", clientName)
	}
	if version != "" {
		q.Set("version", version)
	}
	u := url.URL{Scheme: "wss", Host: host, Path: "/app/" + key, RawQuery: q.Encode()}
	return u.String()
}
