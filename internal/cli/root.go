// Package cli wires the warpcode commands together.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcode/internal/ui"
	"github.com/BioHazard786/warpcode/internal/version"
)

// NewRootCommand builds the warpcode command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "warpcode",
		Short: "Peer-to-peer file transfer paired by a 6-digit code",
		Long: `WarpCode sends files directly between two devices over WebRTC. The sender
gets a 6-digit code from the rendezvous server; the receiver types it in (or
opens the share link in a browser) and the files flow peer to peer, each one
checked against its SHA-256 on arrival.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newSendCommand(), newReceiveCommand(), newServerCommand())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
