package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/gorilla/websocket"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventUpdateData
	EventUpdateCode
)

// Event is one lifecycle change or server message.
type Event struct {
	Kind     EventKind
	Snapshot domain.TimerSnapshot // EventUpdateData
	Code     string               // EventUpdateCode
	Err      error                // EventDisconnect
}

// ConnectionError reports a refused dial or a lost connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var ErrAlreadyConnected = errors.New("viewer: already connected")

const (
	eventBuffer    = 16
	closeWriteWait = time.Second
)

// Client follows one channel over the realtime socket. A lost connection
// moves it to StatusDisconnected; callers dial again with Connect.
// Events must be drained.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
	events chan Event

	mu     sync.Mutex
	status Status
	conn   *websocket.Conn
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for serverURL (http, https, ws or wss) and channelKey.
func NewClient(serverURL, channelKey string, opts ...Option) (*Client, error) {
	wsURL, err := socketURL(serverURL, channelKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		logger: slog.Default(),
		events: make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func socketURL(serverURL, channelKey string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("channelKey", channelKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials the server. On success it emits EventConnect and starts
// delivering server messages; the first is the current snapshot.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return &ConnectionError{Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.status = StatusConnected
	c.mu.Unlock()

	c.events <- Event{Kind: EventConnect}
	go c.read(conn)
	return nil
}

// Close ends the current connection. The reader still reports EventDisconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (c *Client) read(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()

			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.status = StatusDisconnected
			}
			c.mu.Unlock()

			c.logger.Info("Realtime connection closed", "error", err)
			c.events <- Event{Kind: EventDisconnect, Err: &ConnectionError{Err: err}}
			return
		}

		if ev, ok := c.decode(msg); ok {
			c.events <- ev
		}
	}
}

// decode turns an envelope into an event. Malformed frames are dropped.
func (c *Client) decode(msg []byte) (Event, bool) {
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Warn("Dropping malformed envelope", "error", err)
		return Event{}, false
	}

	switch env.Event {
	case domain.EventUpdateData:
		snapshot, err := domain.DecodeSnapshot(env.Data)
		if err != nil {
			c.logger.Warn("Dropping malformed snapshot", "error", err)
			return Event{}, false
		}
		return Event{Kind: EventUpdateData, Snapshot: snapshot}, true
	case domain.EventUpdateCode:
		var update domain.CodeUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			c.logger.Warn("Dropping malformed code update", "error", err)
			return Event{}, false
		}
		return Event{Kind: EventUpdateCode, Code: domain.SourceOrDefault(update.OverlayCode)}, true
	default:
		c.logger.Debug("Ignoring unknown event", "event", env.Event)
		return Event{}, false
	}
}
