package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/signaling"
)

var ErrConnectionFailed = errors.New("peer connection failed")

// Signaler relays negotiation payloads to the other peer.
type Signaler interface {
	Signal(data any) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	PeerOptions
	Logger *zap.Logger
}

// Session negotiates one PeerConnection over a Signaler using trickle ICE.
// The offering side opens the data channel; the answering side accepts it.
type Session struct {
	pc  *pion.PeerConnection
	sig Signaler
	log *zap.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit

	incoming chan *DataChannel
	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(sig Signaler, opts SessionOptions) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pc, err := NewPeerConnection(opts.PeerOptions)
	if err != nil {
		return nil, err
	}

	s := &Session{
		pc:       pc,
		sig:      sig,
		log:      opts.Logger,
		incoming: make(chan *DataChannel, 1),
		done:     make(chan struct{}),
	}
	s.setupHandlers()
	return s, nil
}

func (s *Session) setupHandlers() {
	s.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		err := s.sig.Signal(signaling.SignalPayload{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
		if err != nil {
			s.log.Debug("Failed to send ICE candidate", zap.Error(err))
		}
	})

	s.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.log.Debug("Peer connection state changed", zap.Stringer("state", state))
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			s.finish()
		}
	})

	s.pc.OnDataChannel(func(dc *pion.DataChannel) {
		ch := NewDataChannel(dc, s.log)
		select {
		case s.incoming <- ch:
		default:
			s.log.Warn("Ignoring extra data channel", zap.String("label", dc.Label()))
		}
	})
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the connection fails or is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OpenChannel creates the file channel. Call it before Offer so the
// channel is part of the negotiated session.
func (s *Session) OpenChannel() (*DataChannel, error) {
	dc, err := CreateDataChannel(s.pc)
	if err != nil {
		return nil, err
	}
	return NewDataChannel(dc, s.log), nil
}

// Offer creates a local offer and sends it without waiting for gathering.
func (s *Session) Offer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.sig.Signal(signaling.SignalPayload{Type: offer.Type.String(), SDP: offer.SDP})
}

func (s *Session) answer() error {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.sig.Signal(signaling.SignalPayload{Type: answer.Type.String(), SDP: answer.SDP})
}

// HandleSignal applies one payload from the other peer. An offer is
// answered; candidates that arrive before the remote description are held
// until it is set.
func (s *Session) HandleSignal(p *signaling.SignalPayload) error {
	switch {
	case p.IsDescription():
		return s.handleDescription(p)
	case p.IsCandidate():
		return s.addCandidate(pion.ICECandidateInit{
			Candidate:        p.Candidate,
			SDPMid:           p.SDPMid,
			SDPMLineIndex:    p.SDPMLineIndex,
			UsernameFragment: p.UsernameFragment,
		})
	}
	return nil
}

func (s *Session) handleDescription(p *signaling.SignalPayload) error {
	var typ pion.SDPType
	switch p.Type {
	case "offer":
		typ = pion.SDPTypeOffer
	case "answer":
		typ = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedSignal, p.Type)
	}

	if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: typ, SDP: p.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if err := s.flushCandidates(); err != nil {
		return err
	}
	if typ == pion.SDPTypeOffer {
		return s.answer()
	}
	return nil
}

func (s *Session) addCandidate(c pion.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (s *Session) flushCandidates() error {
	s.mu.Lock()
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

// Listen applies payloads from signals until the channel closes, the
// session ends, or ctx is cancelled. Bad payloads are logged and skipped.
func (s *Session) Listen(ctx context.Context, signals <-chan *signaling.SignalPayload) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case p, ok := <-signals:
			if !ok {
				return
			}
			if err := s.HandleSignal(p); err != nil {
				s.log.Warn("Failed to apply signal", zap.Error(err))
			}
		}
	}
}

// Accept waits for the other peer's data channel.
func (s *Session) Accept(ctx context.Context) (*DataChannel, error) {
	select {
	case ch := <-s.incoming:
		return ch, nil
	case <-s.done:
		return nil, ErrConnectionFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the peer connection.
func (s *Session) Close() error {
	defer s.finish()
	return s.pc.Close()
}
