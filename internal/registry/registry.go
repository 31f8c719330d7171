// Package registry owns the code→room mapping of the rendezvous broker.
//
// A Registry is safe for concurrent use. It keeps two indexes: rooms by code
// and bindings by connection, so a connection is bound to at most one room
// at a time. Time is read from an injectable clock so expiry can be driven
// deterministically in tests.
package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the idle window after which an unrefreshed room is purged.
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is how often expired rooms are collected.
	DefaultSweepInterval = time.Minute

	// DefaultMaxConnsPerAddr caps concurrent connections from one source address.
	DefaultMaxConnsPerAddr = 10

	// DefaultCodeSpace is the number of distinct 6-digit codes.
	DefaultCodeSpace = 1_000_000

	// CodeLength is the number of digits in a room code.
	CodeLength = 6

	maxCodeAttempts = 100
)

var (
	ErrCodeExhausted = errors.New("code generation failed")
	ErrNotFound      = errors.New("room not found")
	ErrSessionFull   = errors.New("session full")
	ErrAlreadyBound  = errors.New("connection already bound to a room")
)

// Options configures a Registry. Zero values fall back to the defaults.
type Options struct {
	TTL             time.Duration
	CodeSpace       int
	MaxConnsPerAddr int
	Clock           clock.Clock
}

type binding struct {
	code string
	role Role
}

// Departure describes what happened to a room when a connection left it.
type Departure[C comparable] struct {
	Code string
	Role Role

	// Remaining is the peer still bound to the room, if any.
	Remaining    C
	HasRemaining bool

	// Removed is set when the room became empty and was deleted.
	Removed bool
}

// Stats is a point-in-time view of the registry's size.
type Stats struct {
	Rooms       int
	Paired      int
	Connections int
}

// Registry holds every live room plus per-address admission counters.
type Registry[C comparable] struct {
	mu    sync.Mutex
	rooms map[string]*Room[C]
	conns map[C]binding
	addrs map[string]int

	clock      clock.Clock
	ttl        time.Duration
	codeSpace  int
	maxPerAddr int
}

// New creates an empty registry.
func New[C comparable](opts Options) *Registry[C] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CodeSpace <= 0 || opts.CodeSpace > DefaultCodeSpace {
		opts.CodeSpace = DefaultCodeSpace
	}
	if opts.MaxConnsPerAddr <= 0 {
		opts.MaxConnsPerAddr = DefaultMaxConnsPerAddr
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &Registry[C]{
		rooms:      make(map[string]*Room[C]),
		conns:      make(map[C]binding),
		addrs:      make(map[string]int),
		clock:      opts.Clock,
		ttl:        opts.TTL,
		codeSpace:  opts.CodeSpace,
		maxPerAddr: opts.MaxConnsPerAddr,
	}
}

// Clock returns the time source used for expiry.
func (r *Registry[C]) Clock() clock.Clock {
	return r.clock
}

// TTL returns the idle window applied on create, join and touch.
func (r *Registry[C]) TTL() time.Duration {
	return r.ttl
}

// CreateRoom inserts a room with both slots empty and returns its code and
// session ID.
func (r *Registry[C]) CreateRoom() (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.createLocked()
	if err != nil {
		return "", "", err
	}
	return room.Code, room.SessionID, nil
}

// Open creates a room and binds conn as its creator in one step.
func (r *Registry[C]) Open(conn C) (Room[C], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return Room[C]{}, ErrAlreadyBound
	}

	room, err := r.createLocked()
	if err != nil {
		return Room[C]{}, err
	}
	room.PeerA = conn
	r.conns[conn] = binding{code: room.Code, role: RoleA}
	return *room, nil
}

func (r *Registry[C]) createLocked() (*Room[C], error) {
	code, err := r.generateCodeLocked()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	room := &Room[C]{
		Code:      code,
		SessionID: newSessionID(),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.rooms[code] = room
	return room, nil
}

// generateCodeLocked draws uniformly random codes until it finds one that
// is not in use, giving up after a fixed number of attempts.
func (r *Registry[C]) generateCodeLocked() (string, error) {
	limit := big.NewInt(int64(r.codeSpace))
	for range maxCodeAttempts {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("draw room code: %w", err)
		}
		code := fmt.Sprintf("%0*d", CodeLength, n.Int64())
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Lookup returns a snapshot of the room registered under code.
func (r *Registry[C]) Lookup(code string) (Room[C], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return Room[C]{}, ErrNotFound
	}
	return *room, nil
}

// Join binds conn as the second peer of the room under code and refreshes
// its expiry. Check and bind happen under one lock, so at most one of
// several concurrent joins on the same code succeeds.
func (r *Registry[C]) Join(code string, conn C) (Room[C], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return Room[C]{}, ErrAlreadyBound
	}

	room, ok := r.rooms[code]
	if !ok {
		return Room[C]{}, ErrNotFound
	}
	if room.hasB() {
		return Room[C]{}, ErrSessionFull
	}

	room.PeerB = conn
	room.touch(r.clock.Now(), r.ttl)
	r.conns[conn] = binding{code: code, role: RoleB}
	return *room, nil
}

// Touch refreshes the expiry of the room under code. It reports whether the
// room exists.
func (r *Registry[C]) Touch(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return false
	}
	room.touch(r.clock.Now(), r.ttl)
	return true
}

// Remove deletes the room under code along with the bindings of its peers.
func (r *Registry[C]) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(code)
}

func (r *Registry[C]) removeLocked(code string) {
	room, ok := r.rooms[code]
	if !ok {
		return
	}
	if room.hasA() {
		delete(r.conns, room.PeerA)
	}
	if room.hasB() {
		delete(r.conns, room.PeerB)
	}
	delete(r.rooms, code)
}

// Sweep deletes every room that expired before now or has no peers left.
// It returns the codes that were removed.
func (r *Registry[C]) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for code, room := range r.rooms {
		if room.ExpiresAt.Before(now) || room.State() == StateEmpty {
			r.removeLocked(code)
			removed = append(removed, code)
		}
	}
	return removed
}

// Binding returns the room code and role conn is currently bound to.
func (r *Registry[C]) Binding(conn C) (string, Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[conn]
	if !ok {
		return "", RoleNone, false
	}
	return b.code, b.role, true
}

// Counterpart returns the other peer in conn's room, if both are bound.
func (r *Registry[C]) Counterpart(conn C) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero C
	b, ok := r.conns[conn]
	if !ok {
		return zero, false
	}
	room, ok := r.rooms[b.code]
	if !ok {
		return zero, false
	}

	switch b.role {
	case RoleA:
		return room.PeerB, room.hasB()
	case RoleB:
		return room.PeerA, room.hasA()
	}
	return zero, false
}

// Unbind clears whichever slot holds conn. A room left without peers is
// deleted immediately instead of waiting for the next sweep.
func (r *Registry[C]) Unbind(conn C) (Departure[C], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[conn]
	if !ok {
		return Departure[C]{}, false
	}
	delete(r.conns, conn)

	room, ok := r.rooms[b.code]
	if !ok {
		return Departure[C]{}, false
	}

	var zero C
	d := Departure[C]{Code: b.code, Role: b.role}
	switch {
	case room.PeerA == conn:
		room.PeerA = zero
		d.Remaining, d.HasRemaining = room.PeerB, room.hasB()
	case room.PeerB == conn:
		room.PeerB = zero
		d.Remaining, d.HasRemaining = room.PeerA, room.hasA()
	}

	if room.State() == StateEmpty {
		delete(r.rooms, b.code)
		d.Removed = true
	}
	return d, true
}

// Admit counts a new connection from addr. It returns false, without
// counting, once addr already holds the maximum number of connections.
func (r *Registry[C]) Admit(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.addrs[addr] >= r.maxPerAddr {
		return false
	}
	r.addrs[addr]++
	return true
}

// Release undoes a successful Admit for addr.
func (r *Registry[C]) Release(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.addrs[addr] <= 1 {
		delete(r.addrs, addr)
		return
	}
	r.addrs[addr]--
}

// Len returns the number of live rooms.
func (r *Registry[C]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Stats returns room and connection counts.
func (r *Registry[C]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Rooms: len(r.rooms)}
	for _, room := range r.rooms {
		if room.State() == StatePaired {
			s.Paired++
		}
	}
	for _, n := range r.addrs {
		s.Connections += n
	}
	return s
}

// Close drops every room, binding and admission counter.
func (r *Registry[C]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.rooms)
	clear(r.conns)
	clear(r.addrs)
}

// ValidCode reports whether code is exactly six ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
