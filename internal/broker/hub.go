package broker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/registry"
)

// Peer is the broker's view of one signaling connection.
//
// Send must not block: the Hub calls it from its event loop.
type Peer interface {
	RemoteAddr() string
	Send(msg *Message)
	Close()
}

// Options configures a Hub.
type Options struct {
	Registry      registry.Options
	SweepInterval time.Duration
	Logger        *zap.Logger
	Metrics       *Metrics
}

// Hub is the central brain of the signaling server.
// It pairs peers through the registry and relays negotiation payloads.
type Hub struct {
	// Register is a channel for registering new peers.
	Register chan Peer

	// Unregister is a channel for unregistering peers.
	Unregister chan Peer

	// Broadcast is a channel for peers to hand inbound messages to.
	// The hub will process these messages.
	Broadcast chan *Message

	rooms         *registry.Registry[Peer]
	peers         map[Peer]struct{}
	sweepInterval time.Duration
	log           *zap.Logger
	metrics       *Metrics
	done          chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(opts Options) *Hub {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = registry.DefaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	return &Hub{
		Register:      make(chan Peer),
		Unregister:    make(chan Peer),
		Broadcast:     make(chan *Message),
		rooms:         registry.New[Peer](opts.Registry),
		peers:         make(map[Peer]struct{}),
		sweepInterval: opts.SweepInterval,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		done:          make(chan struct{}),
	}
}

// Registry exposes the session registry backing the hub.
func (h *Hub) Registry() *registry.Registry[Peer] {
	return h.rooms
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Admit applies the per-address connection cap. Every admitted address
// must be released by unregistering its peer.
func (h *Hub) Admit(addr string) bool {
	if !h.rooms.Admit(addr) {
		h.log.Warn("Rate limited", zap.String("addr", addr))
		h.metrics.Errors.WithLabelValues(ErrorRateLimited).Inc()
		return false
	}
	h.metrics.ConnectionsActive.Inc()
	return true
}

// Attach hands an admitted peer to the event loop. It returns false if the
// hub is no longer running.
func (h *Hub) Attach(peer Peer) bool {
	select {
	case h.Register <- peer:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that serializes every registry mutation:
// inbound messages, disconnects and the expiry sweep.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.rooms.Clock().Ticker(h.sweepInterval)

	defer func() {
		ticker.Stop()
		for peer := range h.peers {
			peer.Close()
		}
		clear(h.peers)
		h.rooms.Close()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case peer := <-h.Register:
			h.peers[peer] = struct{}{}
			h.log.Debug("Client registered", zap.String("addr", peer.RemoteAddr()))

		case peer := <-h.Unregister:
			delete(h.peers, peer)
			h.Detach(peer)
			h.rooms.Release(peer.RemoteAddr())
			h.metrics.ConnectionsActive.Dec()
			peer.Close()
			h.log.Debug("Client unregistered", zap.String("addr", peer.RemoteAddr()))

		case msg := <-h.Broadcast:
			h.Handle(msg.peer, msg)

		case <-ticker.C:
			h.Sweep(h.rooms.Clock().Now())
		}
	}
}

// Handle dispatches one inbound message from peer.
func (h *Hub) Handle(peer Peer, msg *Message) {
	switch msg.Type {
	case TypeCreate:
		h.Create(peer)
	case TypeJoin:
		h.Join(peer, msg.Code)
	case TypeSignal:
		h.Relay(peer, msg.Data)
	case TypePing:
		h.Heartbeat(peer)
	default:
		h.log.Info("Unknown message type",
			zap.String("addr", peer.RemoteAddr()),
			zap.String("type", msg.Type))
	}
}

// Create opens a room with peer as its creator.
func (h *Hub) Create(peer Peer) {
	room, err := h.rooms.Open(peer)
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyBound) {
			h.reject(peer, ErrorAlreadyInSession, err)
			return
		}
		h.reject(peer, ErrorCodeGenerationFailed, err)
		return
	}

	h.log.Info("Session created",
		zap.String("addr", peer.RemoteAddr()),
		zap.String("code", room.Code),
		zap.String("session", room.SessionID[:8]))
	h.metrics.SessionsCreated.Inc()
	h.observeRooms()

	peer.Send(&Message{
		Type:      TypeCreated,
		Code:      room.Code,
		SessionID: room.SessionID,
	})
}

// Join binds peer as the second member of the room under code.
func (h *Hub) Join(peer Peer, code string) {
	code = strings.TrimSpace(code)
	if !registry.ValidCode(code) {
		h.reject(peer, ErrorInvalidCodeFormat, nil)
		return
	}

	room, err := h.rooms.Join(code, peer)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.reject(peer, ErrorInvalidCode, err)
		return
	case errors.Is(err, registry.ErrSessionFull):
		h.reject(peer, ErrorSessionFull, err)
		return
	case errors.Is(err, registry.ErrAlreadyBound):
		h.reject(peer, ErrorAlreadyInSession, err)
		return
	case err != nil:
		h.log.Error("Join failed", zap.String("code", code), zap.Error(err))
		return
	}

	h.log.Info("Joined session", zap.String("addr", peer.RemoteAddr()), zap.String("code", code))
	h.metrics.SessionsJoined.Inc()

	if room.HasPeerA() {
		room.PeerA.Send(&Message{Type: TypePeerJoined, Code: code})
	}
	peer.Send(&Message{
		Type:      TypeJoined,
		Code:      code,
		SessionID: room.SessionID,
	})
}

// Relay forwards an opaque negotiation payload to peer's counterpart.
// Without a room or a counterpart the payload is dropped silently: races
// between join and signal are expected.
func (h *Hub) Relay(peer Peer, data json.RawMessage) {
	target, ok := h.rooms.Counterpart(peer)
	if !ok {
		h.log.Debug("Signal dropped: no counterpart", zap.String("addr", peer.RemoteAddr()))
		h.metrics.SignalsDropped.Inc()
		return
	}

	target.Send(&Message{Type: TypeSignal, Data: data})
	h.metrics.SignalsRelayed.Inc()
}

// Heartbeat answers a ping and refreshes the expiry of peer's room.
func (h *Hub) Heartbeat(peer Peer) {
	peer.Send(&Message{Type: TypePong})
	if code, _, ok := h.rooms.Binding(peer); ok {
		h.rooms.Touch(code)
	}
}

// Detach removes peer from its room and tells the remaining peer.
//
// A room whose creator left is removed right away: its creator slot can
// never be refilled, so no join could pair it again.
func (h *Hub) Detach(peer Peer) {
	d, ok := h.rooms.Unbind(peer)
	if !ok {
		return
	}

	if d.HasRemaining {
		d.Remaining.Send(&Message{Type: TypePeerLeft, Reason: ReasonDisconnect})
	}
	if d.Role == registry.RoleA && !d.Removed {
		h.rooms.Remove(d.Code)
		d.Removed = true
	}

	h.log.Info("Peer disconnected",
		zap.String("addr", peer.RemoteAddr()),
		zap.String("code", d.Code),
		zap.String("role", string(d.Role)),
		zap.Bool("room_removed", d.Removed))
	h.observeRooms()
}

// Sweep collects rooms that expired before now or lost both peers.
func (h *Hub) Sweep(now time.Time) {
	removed := h.rooms.Sweep(now)
	if len(removed) == 0 {
		return
	}

	h.log.Info("Expired rooms", zap.Strings("codes", removed))
	h.metrics.SessionsExpired.Add(float64(len(removed)))
	h.observeRooms()
}

func (h *Hub) reject(peer Peer, code string, err error) {
	fields := []zap.Field{zap.String("addr", peer.RemoteAddr()), zap.String("error", code)}
	if err != nil {
		fields = append(fields, zap.NamedError("cause", err))
	}
	h.log.Info("Request rejected", fields...)
	h.metrics.Errors.WithLabelValues(code).Inc()

	peer.Send(&Message{Type: TypeError, Error: code})
}

func (h *Hub) observeRooms() {
	h.metrics.RoomsActive.Set(float64(h.rooms.Len()))
}
