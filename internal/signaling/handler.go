package signaling

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Handler routes incoming signaling messages to typed channels. Every
// channel is closed once the connection ends.
type Handler struct {
	client *Client
	log    *zap.Logger

	Created    chan *Session
	Joined     chan *Session
	PeerJoined chan string
	PeerLeft   chan string
	Signal     chan *SignalPayload
	Error      chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		log:        client.log,
		Created:    make(chan *Session, 1),
		Joined:     make(chan *Session, 1),
		PeerJoined: make(chan string, 1),
		PeerLeft:   make(chan string, 1),
		Signal:     make(chan *SignalPayload, 64),
		Error:      make(chan string, 4),
	}
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection ends.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeCreated:
			deliver(h, h.Created, &Session{Code: msg.Code, SessionID: msg.SessionID})

		case MessageTypeJoined:
			deliver(h, h.Joined, &Session{Code: msg.Code, SessionID: msg.SessionID})

		case MessageTypePeerJoined:
			deliver(h, h.PeerJoined, msg.Code)

		case MessageTypePeerLeft:
			deliver(h, h.PeerLeft, msg.Reason)

		case MessageTypeSignal:
			h.handleSignal(msg)

		case MessageTypeError:
			deliver(h, h.Error, msg.Error)

		case MessageTypePong:

		default:
			h.log.Debug("Unknown server message", zap.String("type", msg.Type))
		}
	}
}

// handleSignal parses the negotiation payload and hands it on.
func (h *Handler) handleSignal(msg *Message) {
	var payload SignalPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.log.Debug("Ignoring malformed signal", zap.Error(err))
		return
	}
	if !payload.IsDescription() && !payload.IsCandidate() {
		h.log.Debug("Ignoring empty signal")
		return
	}
	deliver(h, h.Signal, &payload)
}

// deliver blocks until the consumer takes v or the client is closed.
func deliver[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.client.done:
	}
}

func (h *Handler) close() {
	close(h.Created)
	close(h.Joined)
	close(h.PeerJoined)
	close(h.PeerLeft)
	close(h.Signal)
	close(h.Error)
}
