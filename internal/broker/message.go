package broker

import "encoding/json"

// Client to server message types.
const (
	TypeCreate = "create"
	TypeJoin   = "join"
	TypeSignal = "signal"
	TypePing   = "ping"
)

// Server to client message types. TypeSignal is used in both directions.
const (
	TypeCreated    = "created"
	TypeJoined     = "joined"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypePong       = "pong"
	TypeError      = "error"
)

// Values of the error field of an error reply.
const (
	ErrorInvalidCodeFormat    = "invalid_code_format"
	ErrorInvalidCode          = "invalid_code"
	ErrorSessionFull          = "session_full"
	ErrorRateLimited          = "rate_limited"
	ErrorCodeGenerationFailed = "code_generation_failed"
	ErrorAlreadyInSession     = "already_in_session"
)

// ReasonDisconnect is sent in peer_left when the counterpart's connection closed.
const ReasonDisconnect = "disconnect"

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type      string          `json:"type"`
	Code      string          `json:"code,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`

	// peer is the connection that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	peer Peer `json:"-"`
}
