package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/files"
	"github.com/BioHazard786/warpcode/internal/transfer"
	"github.com/BioHazard786/warpcode/internal/ui"
	"github.com/BioHazard786/warpcode/internal/webrtc"
)

type receiveOptions struct {
	clientFlags
	transfer.TransferOptions
}

func newReceiveCommand() *cobra.Command {
	opts := &receiveOptions{clientFlags: newClientFlags()}

	cmd := &cobra.Command{
		Use:     "receive CODE|URL",
		Aliases: []string{"r"},
		Short:   "Receive files from a sender",
		Long: `Receive files directly from a sender over WebRTC.

Examples:
  warpcode receive 482913
  warpcode receive "https://warpcode.qzz.io/?code=482913"
  warpcode receive 482913 --dir ~/Downloads --zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd.Context(), opts, args[0])
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.OutputDir, "dir", "d", "", "Directory to save received files")
	cmd.Flags().BoolVarP(&opts.ZipMode, "zip", "z", false, "Bundle received files into one zip archive")
	return cmd
}

// saver writes each verified file to disk and keeps a row per file for the
// verification report.
type saver struct {
	transfer.NopObserver

	dir string
	log *zap.Logger

	mu    sync.Mutex
	rows  []ui.Verification
	paths []string
}

func (s *saver) OnFileComplete(f transfer.File) {
	path, err := files.WriteFile(s.dir, f)
	if err != nil {
		s.log.Warn("Failed to save file", zap.String("file", f.Name), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, ui.Verification{Name: f.Name, Size: f.Size, Hash: f.Hash, Path: path, Err: err})
	if err == nil {
		s.paths = append(s.paths, path)
	}
}

func (s *saver) OnFileError(info transfer.FileInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, ui.Verification{Name: info.Name, Size: info.Size, Hash: info.Hash, Err: err})
}

func (s *saver) results() ([]ui.Verification, []string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed int
	for _, r := range s.rows {
		if r.Err != nil {
			failed++
		}
	}
	return append([]ui.Verification(nil), s.rows...), append([]string(nil), s.paths...), failed
}

func runReceive(ctx context.Context, opts *receiveOptions, input string) error {
	log := zap.L().Named("receive")

	code, err := config.ParseCode(input)
	if err != nil {
		return err
	}

	cfg, err := opts.load()
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	conn, err := dial(ctx, cfg, log)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.client.Join(code); err != nil {
		return transfer.NewError("join session", err)
	}
	if _, err := await(ctx, conn, conn.handler.Joined, "join session"); err != nil {
		return err
	}
	ui.PrintSuccessf("Joined session %s", code)

	peer, err := conn.newPeer(&opts.clientFlags)
	if err != nil {
		return err
	}
	defer peer.Close()

	ctx, cancel := guard(ctx,
		stopOn(conn.left, errPeerLeft),
		stopOn(peer.Done(), webrtc.ErrConnectionFailed),
	)
	defer cancel(nil)
	go peer.Listen(ctx, conn.handler.Signal)

	stopSpinner = ui.RunWaitingSpinner("Waiting for sender to connect...")
	acceptCtx, cancelAccept := context.WithTimeout(ctx, connectTimeout)
	ch, err := peer.Accept(acceptCtx)
	cancelAccept()
	stopSpinner()
	if err != nil {
		return transfer.NewError("accept data channel", err)
	}

	outDir, cleanup, err := prepareOutput(opts.TransferOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	progress := ui.NewTransferUI(ui.ModeReceive, opts.in, opts.out)
	store := &saver{dir: outDir, log: log}
	receiver := transfer.NewReceiver(transfer.ReceiverOptions{
		Observer: transfer.Tee(store, progress),
		Logger:   log,
	})

	ctx, cancelUI := guard(ctx, stopOn(progress.Cancelled(), errCancelled))
	defer cancelUI(nil)
	progress.Start()
	progress.SetState("Receiving files...")
	ch.Bind(receiver)

	select {
	case <-ch.Done():
	case <-ctx.Done():
	}
	receiver.Close(stopCause(ctx))
	progress.Stop()

	rows, paths, failed := store.results()
	if opts.ZipMode && len(paths) > 0 {
		archive, err := bundle(opts.OutputDir, code, paths)
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].Err == nil {
				rows[i].Path = archive
			}
		}
	}

	if len(rows) > 0 {
		fmt.Fprintln(opts.out, ui.VerificationReport(rows))
	}

	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d files failed", failed, len(rows))
	case len(rows) == 0:
		if cause := stopCause(ctx); cause != nil {
			return transfer.NewError("receive files", cause)
		}
		ui.PrintWarning("The sender closed the connection without sending anything")
	default:
		ui.PrintSuccessf("%d file(s) received", len(rows))
	}
	return nil
}

// prepareOutput picks where files land. With zip mode they go to a
// temporary directory that cleanup removes once bundled.
func prepareOutput(opts transfer.TransferOptions) (string, func(), error) {
	if !opts.ZipMode {
		dir := opts.OutputDir
		if dir == "" {
			dir = "."
		}
		return dir, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "warpcode-receive-*")
	if err != nil {
		return "", nil, transfer.NewError("create temp dir", err)
	}
	return tmp, func() { os.RemoveAll(tmp) }, nil
}

func bundle(outputDir, code string, paths []string) (string, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", transfer.NewError("create output dir", err)
	}
	target := files.UniqueName(outputDir, fmt.Sprintf("warpcode-%s.zip", code))

	stopSpinner := ui.RunSpinner("Zipping files...")
	err := files.ZipFiles(target, paths)
	stopSpinner()
	if err != nil {
		return "", transfer.NewError("zip files", err)
	}
	ui.PrintSuccessf("Files zipped to %s", filepath.Clean(target))
	return target, nil
}
