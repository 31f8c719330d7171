package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/files"
	"github.com/BioHazard786/warpcode/internal/transfer"
	"github.com/BioHazard786/warpcode/internal/ui"
	"github.com/BioHazard786/warpcode/internal/webrtc"
)

type sendOptions struct {
	clientFlags

	// onRoom shows the code once the server assigns it.
	onRoom func(code, link string)
}

func newSendCommand() *cobra.Command {
	opts := &sendOptions{clientFlags: newClientFlags()}

	cmd := &cobra.Command{
		Use:     "send FILE...",
		Aliases: []string{"s"},
		Short:   "Send files to a receiver",
		Long: `Send files directly to a receiver over WebRTC.

Examples:
  warpcode send file1.txt file2.pdf
  warpcode send --domain localhost:8080 notes.md
  warpcode send --relay --turn turn.example.com big.iso`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), opts, args)
		},
	}
	opts.register(cmd)
	return cmd
}

func (o *sendOptions) showRoom(code, link string) {
	if o.onRoom != nil {
		o.onRoom(code, link)
		return
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, ui.RoomInfoView(code, link))
}

// tally counts outcomes for the summary table.
type tally struct {
	transfer.NopObserver

	mu     sync.Mutex
	done   int
	failed int
	bytes  int64
}

func (t *tally) OnFileComplete(f transfer.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.bytes += f.Size
}

func (t *tally) OnFileError(transfer.FileInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func runSend(ctx context.Context, opts *sendOptions, paths []string) error {
	log := zap.L().Named("send")

	stopSpinner := ui.RunSpinner("Validating files...")
	infos, err := files.ValidateFiles(paths)
	stopSpinner()
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.out, ui.FileTableView(tableItems(infos)))

	cfg, err := opts.load()
	if err != nil {
		return err
	}

	stopSpinner = ui.RunConnectionSpinner("Connecting to server...")
	conn, err := dial(ctx, cfg, log)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.client.Create(); err != nil {
		return transfer.NewError("create session", err)
	}
	session, err := await(ctx, conn, conn.handler.Created, "create session")
	if err != nil {
		return err
	}
	opts.showRoom(session.Code, cfg.GetRoomLink(session.Code))

	stopSpinner = ui.RunWaitingSpinner("Waiting for receiver to join...")
	_, err = await(ctx, conn, conn.handler.PeerJoined, "wait for receiver")
	stopSpinner()
	if err != nil {
		return err
	}
	ui.PrintSuccess("Receiver joined")

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

	ch, err := peer.OpenChannel()
	if err != nil {
		return transfer.NewError("open data channel", err)
	}
	if err := peer.Offer(); err != nil {
		return transfer.NewError("send offer", err)
	}

	stopSpinner = ui.RunConnectionSpinner("Establishing peer connection...")
	openCtx, cancelOpen := context.WithTimeout(ctx, connectTimeout)
	err = ch.WaitOpen(openCtx)
	cancelOpen()
	stopSpinner()
	if err != nil {
		return transfer.NewError("open data channel", err)
	}

	sources, closeSources, err := files.OpenSources(infos)
	if err != nil {
		return err
	}
	defer closeSources()

	progress := ui.NewTransferUI(ui.ModeSend, opts.in, opts.out)
	ctx, cancelUI := guard(ctx, stopOn(progress.Cancelled(), errCancelled))
	defer cancelUI(nil)
	progress.Start()
	progress.SetState("Sending files...")

	counts := &tally{}
	sender := transfer.NewSender(ch, transfer.SenderOptions{
		Observer: transfer.Tee(progress, counts),
		Logger:   log,
	})

	start := time.Now()
	sendErr := sender.SendAll(ctx, sources)
	if ctx.Err() == nil && !errors.Is(sendErr, transfer.ErrChannelClosed) {
		progress.SetState("Waiting for the last chunks to leave...")
		sendErr = multierr.Append(sendErr, sender.Drain(ctx, transfer.DrainTimeout))
		linger(ctx, closeLinger)
	}
	elapsed := time.Since(start)
	cause := stopCause(ctx)
	progress.Stop()

	if err := ch.Close(); err != nil {
		log.Debug("Closing data channel", zap.Error(err))
	}

	status := "Complete"
	switch {
	case cause != nil:
		status = "Aborted"
	case counts.failed > 0:
		status = "Partial"
	}
	fmt.Fprintln(opts.out, ui.TransferSummaryView(ui.TransferSummary{
		Status:    status,
		Files:     counts.done,
		Failed:    counts.failed,
		TotalSize: counts.bytes,
		Duration:  elapsed,
	}))

	if cause != nil {
		return transfer.NewError("send files", cause)
	}
	return sendErr
}

func linger(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func tableItems(infos []files.FileInfo) []ui.FileTableItem {
	items := make([]ui.FileTableItem, len(infos))
	for i, f := range infos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	return items
}
