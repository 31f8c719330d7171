package cli

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/broker"
	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/signaling"
	"github.com/BioHazard786/warpcode/internal/transfer"
	"github.com/BioHazard786/warpcode/internal/webrtc"
)

const (
	// connectTimeout bounds the ICE and data channel setup.
	connectTimeout = 30 * time.Second

	// closeLinger gives the last frames time to leave the SCTP queue
	// before the sender closes the channel.
	closeLinger = 2 * time.Second
)

var (
	errSignaling = errors.New("signaling error")
	errPeerLeft  = errors.New("peer left the session")
	errCancelled = errors.New("cancelled")
)

var serverErrors = map[string]string{
	broker.ErrorInvalidCodeFormat:    "codes are 6 digits",
	broker.ErrorInvalidCode:          "no session with that code, it may have expired",
	broker.ErrorSessionFull:          "that session already has two peers",
	broker.ErrorRateLimited:          "too many connections from this address",
	broker.ErrorCodeGenerationFailed: "the server could not allocate a code, try again",
	broker.ErrorAlreadyInSession:     "this connection is already in a session",
}

// describe turns a server error code into something a user can act on.
func describe(code string) string {
	if msg, ok := serverErrors[code]; ok {
		return msg
	}
	return code
}

// connection is a signaling client plus its handler. left is closed when
// the server reports that the other peer went away.
type connection struct {
	client  *signaling.Client
	handler *signaling.Handler
	cfg     *config.Config
	log     *zap.Logger
	left    chan struct{}
}

func dial(ctx context.Context, cfg *config.Config, log *zap.Logger) (*connection, error) {
	client := signaling.NewClient(cfg.WebSocketURL, signaling.ClientOptions{
		Logger:   log.Named("signaling"),
		Resolver: signaling.NewResolver(log.Named("dns")),
	})
	if err := client.Connect(ctx); err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	c := &connection{
		client:  client,
		handler: signaling.NewHandler(client),
		cfg:     cfg,
		log:     log,
		left:    make(chan struct{}),
	}
	go c.handler.Start()
	go func() {
		if reason, ok := <-c.handler.PeerLeft; ok {
			c.log.Debug("Peer left", zap.String("reason", reason))
			close(c.left)
		}
	}()
	return c, nil
}

func (c *connection) Close() {
	c.client.Close()
}

// await waits for the next value on ch, failing on a server error reply.
func await[T any](ctx context.Context, c *connection, ch chan T, op string) (T, error) {
	var zero T
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, transfer.NewError(op, signaling.ErrClosed)
		}
		return v, nil
	case code, ok := <-c.handler.Error:
		if !ok {
			return zero, transfer.NewError(op, signaling.ErrClosed)
		}
		return zero, transfer.WrapError(op, errSignaling, describe(code))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *connection) newPeer(f *clientFlags) (*webrtc.Session, error) {
	sess, err := webrtc.NewSession(c.client, webrtc.SessionOptions{
		PeerOptions: webrtc.PeerOptions{
			Config:     c.cfg,
			ForceRelay: f.relay,
			API:        f.api,
		},
		Logger: c.log.Named("webrtc"),
	})
	if err != nil {
		return nil, transfer.NewError("create peer", err)
	}
	return sess, nil
}

type stopper struct {
	ch    <-chan struct{}
	cause error
}

func stopOn(ch <-chan struct{}, cause error) stopper {
	return stopper{ch: ch, cause: cause}
}

// guard cancels the returned context with the matching cause as soon as
// any stopper fires.
func guard(ctx context.Context, stops ...stopper) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	for _, s := range stops {
		go func(s stopper) {
			select {
			case <-s.ch:
				cancel(s.cause)
			case <-ctx.Done():
			}
		}(s)
	}
	return ctx, cancel
}

// stopCause reports why ctx ended early, or nil if it is still live.
func stopCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
