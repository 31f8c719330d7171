package cli

import (
	"errors"
	"io"
	"os"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/transfer"
)

var errRelayWithoutTURN = errors.New("cannot force relay mode without a TURN server")

// clientFlags are shared by send and receive.
type clientFlags struct {
	domain    string
	signaling string
	stun      string
	turn      string
	turnUser  string
	turnPass  string
	relay     bool

	// api overrides the pion API; nil uses the default.
	api *pion.API
	in  io.Reader
	out io.Writer
}

func newClientFlags() clientFlags {
	return clientFlags{in: os.Stdin, out: os.Stdout}
}

func (f *clientFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.domain, "domain", "", "Server domain (env DOMAIN)")
	flags.StringVar(&f.signaling, "signaling-url", "", "Full websocket URL of the server (env SIGNALING_URL)")
	flags.StringVarP(&f.stun, "stun", "s", "", "STUN server (env STUN_SERVER)")
	flags.StringVarP(&f.turn, "turn", "t", "", "TURN server (env TURN_SERVER)")
	flags.StringVar(&f.turnUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	flags.StringVar(&f.turnPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	flags.BoolVarP(&f.relay, "relay", "r", false, "Force relay through the TURN server")
}

func (f *clientFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:       f.domain,
		SignalingURL: f.signaling,
		STUNServer:   f.stun,
		TURNServer:   f.turn,
		TURNUser:     f.turnUser,
		TURNPass:     f.turnPass,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	if f.relay && cfg.GetTURNServers() == nil {
		return nil, errRelayWithoutTURN
	}
	return cfg, nil
}
