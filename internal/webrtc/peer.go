// Package webrtc connects two peers over a pion PeerConnection and exposes
// the resulting data channel as a transfer.Channel.
package webrtc

import (
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcode/internal/config"
)

// ChannelLabel names the single data channel files travel over.
const ChannelLabel = "file"

var ErrUnexpectedSignal = errors.New("unexpected signal")

// PeerOptions configures the ICE side of a PeerConnection.
type PeerOptions struct {
	// Config supplies STUN and TURN servers. A nil Config gathers host
	// candidates only.
	Config *config.Config

	// ForceRelay restricts ICE to TURN relays when a TURN server is set.
	ForceRelay bool

	// API overrides the pion API, for custom setting engines.
	API *pion.API
}

// NewPeerConnection creates a PeerConnection with the configured ICE servers.
// Relay-only transport is used when asked for, or when the host looks like
// it sits behind a tunnel and a TURN server is available.
func NewPeerConnection(opts PeerOptions) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	var turnServers []string

	if cfg := opts.Config; cfg != nil {
		if stun := cfg.GetSTUNServers(); stun != nil {
			iceServers = append(iceServers, pion.ICEServer{URLs: stun})
		}
		turnServers = cfg.GetTURNServers()
		if turnServers != nil {
			username, password := cfg.GetTURNCredentials()
			iceServers = append(iceServers, pion.ICEServer{
				URLs:       turnServers,
				Username:   username,
				Credential: password,
			})
		}
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (opts.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	conf := pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}

	var (
		pc  *pion.PeerConnection
		err error
	)
	if opts.API != nil {
		pc, err = opts.API.NewPeerConnection(conf)
	} else {
		pc, err = pion.NewPeerConnection(conf)
	}
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// CreateDataChannel opens the reliable, ordered channel used for files.
func CreateDataChannel(pc *pion.PeerConnection) (*pion.DataChannel, error) {
	ordered := true
	dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return dc, nil
}
