package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// HeartbeatInterval is how often an application-level ping keeps the
	// room's expiry fresh on the server.
	HeartbeatInterval = 30 * time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// ClientOptions configures a Client.
type ClientOptions struct {
	Logger    *zap.Logger
	Resolver  *Resolver
	Heartbeat time.Duration
}

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	resolver  *Resolver
	heartbeat time.Duration
	log       *zap.Logger

	incoming chan *Message
	outgoing chan *Message
	done     chan struct{}
	once     sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = HeartbeatInterval
	}
	return &Client{
		serverURL: serverURL,
		resolver:  opts.Resolver,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
		incoming:  make(chan *Message, 16),
		outgoing:  make(chan *Message, 16),
		done:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	if c.resolver != nil {
		dialer.NetDialContext = c.resolver.DialContext
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("Signaling read ended", zap.Error(err))
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("Ignoring malformed server message", zap.Error(err))
			continue
		}

		// Any frame from the server proves the connection is alive.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection, sends periodic
// websocket pings and the application heartbeat.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	heartbeat := time.NewTicker(c.heartbeat)

	defer func() {
		ticker.Stop()
		heartbeat.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("Signaling write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(&Message{Type: MessageTypePing}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues a message for the server.
func (c *Client) SendMessage(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Create asks the server for a new room.
func (c *Client) Create() error {
	return c.SendMessage(&Message{Type: MessageTypeCreate})
}

// Join asks the server to pair this client with the room under code.
func (c *Client) Join(code string) error {
	return c.SendMessage(&Message{Type: MessageTypeJoin, Code: code})
}

// Signal relays negotiation data to the peer.
func (c *Client) Signal(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	return c.SendMessage(&Message{Type: MessageTypeSignal, Data: raw})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
