package signaling

import (
	"encoding/json"

	"github.com/BioHazard786/warpcode/internal/broker"
)

// Message represents all WebSocket messages between CLI and server.
type Message struct {
	Type      string          `json:"type"`
	Code      string          `json:"code,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreate = broker.TypeCreate
	MessageTypeJoin   = broker.TypeJoin
	MessageTypeSignal = broker.TypeSignal
	MessageTypePing   = broker.TypePing

	MessageTypeCreated    = broker.TypeCreated
	MessageTypeJoined     = broker.TypeJoined
	MessageTypePeerJoined = broker.TypePeerJoined
	MessageTypePeerLeft   = broker.TypePeerLeft
	MessageTypePong       = broker.TypePong
	MessageTypeError      = broker.TypeError
)

// Session identifies the room this client ended up in.
type Session struct {
	Code      string
	SessionID string
}

// SignalPayload is the negotiation data relayed between peers: either a
// session description or an ICE candidate, in the shape browsers use.
type SignalPayload struct {
	Type string `json:"type,omitempty"`
	SDP  string `json:"sdp,omitempty"`

	Candidate        string  `json:"candidate,omitempty"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// IsDescription reports whether the payload carries an offer or answer.
func (p *SignalPayload) IsDescription() bool {
	return p.SDP != ""
}

// IsCandidate reports whether the payload carries an ICE candidate.
func (p *SignalPayload) IsCandidate() bool {
	return p.Candidate != ""
}
