package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/logging"
	"github.com/BioHazard786/warpcode/internal/server"
)

func newServerCommand() *cobra.Command {
	var opts config.ServerOptions

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the rendezvous server",
		Long: `Run the signaling server that pairs senders and receivers by code.

Every flag falls back to its environment variable (PORT, SESSION_TTL,
SWEEP_INTERVAL, MAX_CONNS_PER_IP, TRUST_PROXY) and then to the default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(opts)
			if err != nil {
				return err
			}
			log := logging.New(os.Getenv("LOG_LEVEL"), zapcore.InfoLevel)
			defer log.Sync()
			return server.Run(cmd.Context(), cfg, log)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Port, "port", "p", 0, "Port to listen on (default 8080)")
	flags.DurationVar(&opts.SessionTTL, "ttl", 0, "How long an idle session lives (default 5m)")
	flags.DurationVar(&opts.SweepInterval, "sweep", 0, "How often expired sessions are swept (default 1m)")
	flags.IntVar(&opts.MaxConnsPerAddr, "max-conns", 0, "Concurrent connections allowed per client address (default 10)")
	flags.BoolVar(&opts.TrustProxy, "trust-proxy", false, "Take client addresses from X-Forwarded-For")
	return cmd
}
