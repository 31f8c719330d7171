package registry

import "time"

// Role is the slot a connection occupies inside a room.
type Role string

const (
	RoleNone Role = ""
	RoleA    Role = "a" // creator
	RoleB    Role = "b" // joiner
)

// State describes how many slots of a room are filled.
type State int

const (
	StateEmpty State = iota
	StateWaitingForPeer
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWaitingForPeer:
		return "waiting_for_peer"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Room represents a single rendezvous session shared by at most two peers
// under one code. Rooms returned by the Registry are snapshots; mutating
// them has no effect on the registry.
type Room[C comparable] struct {
	// Code is the 6-digit identifier shared out of band.
	Code string

	// SessionID is an opaque token handed to both peers.
	SessionID string

	// PeerA is the connection that created the room.
	PeerA C

	// PeerB is the connection that joined the room.
	PeerB C

	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *Room[C]) hasA() bool {
	var zero C
	return r.PeerA != zero
}

func (r *Room[C]) hasB() bool {
	var zero C
	return r.PeerB != zero
}

// HasPeerA reports whether the creator slot is filled.
func (r Room[C]) HasPeerA() bool { return r.hasA() }

// HasPeerB reports whether the joiner slot is filled.
func (r Room[C]) HasPeerB() bool { return r.hasB() }

// State returns the room's position in the pairing state machine.
func (r Room[C]) State() State {
	switch {
	case r.hasA() && r.hasB():
		return StatePaired
	case r.hasA() || r.hasB():
		return StateWaitingForPeer
	default:
		return StateEmpty
	}
}

// touch moves the expiry forward to now+ttl. It never moves it backward.
func (r *Room[C]) touch(now time.Time, ttl time.Duration) {
	next := now.Add(ttl)
	if next.After(r.ExpiresAt) {
		r.ExpiresAt = next
	}
}
