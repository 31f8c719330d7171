package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP payloads

	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a peer).
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	addr string
	log  *zap.Logger

	// send is a buffered channel for all outbound messages.
	// The hub writes to it, and WritePump drains it onto the websocket.
	send chan *Message

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn for hub. addr is the admission key the connection
// was counted under.
func NewClient(hub *Hub, conn *websocket.Conn, addr string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		addr: addr,
		log:  hub.log.With(zap.String("addr", addr)),
		send: make(chan *Message, sendBuffer),
	}
}

// RemoteAddr returns the admission key of the connection.
func (c *Client) RemoteAddr() string {
	return c.addr
}

// Send queues msg for the write pump. A client too slow to keep up loses
// the message rather than stalling the hub.
func (c *Client) Send(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("Send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
			c.Close()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("Read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("Malformed message ignored", zap.Error(err))
			continue
		}
		msg.peer = c

		select {
		case c.hub.Broadcast <- &msg:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("Write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
