package webrtc

import (
	"context"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/transfer"
)

// DataChannel wraps a pion data channel as a transfer.Channel. It tracks
// open and close so callers can wait on them instead of registering
// callbacks of their own.
type DataChannel struct {
	raw *pion.DataChannel
	log *zap.Logger

	open      chan struct{}
	closed    chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	receiver *transfer.Receiver
	backlog  []pion.DataChannelMessage
}

var (
	_ transfer.Channel     = (*DataChannel)(nil)
	_ transfer.LowNotifier = (*DataChannel)(nil)
)

// NewDataChannel takes over the open, close and message callbacks of raw.
func NewDataChannel(raw *pion.DataChannel, log *zap.Logger) *DataChannel {
	if log == nil {
		log = zap.NewNop()
	}
	c := &DataChannel{
		raw:    raw,
		log:    log,
		open:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	raw.OnOpen(c.markOpen)
	raw.OnClose(c.markClosed)
	raw.OnError(func(err error) {
		c.log.Debug("Data channel error", zap.Error(err))
	})
	raw.OnMessage(c.dispatch)

	if raw.ReadyState() == pion.DataChannelStateOpen {
		c.markOpen()
	}
	return c
}

func (c *DataChannel) markOpen() {
	c.openOnce.Do(func() { close(c.open) })
}

func (c *DataChannel) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		r := c.receiver
		c.mu.Unlock()
		if r != nil {
			r.Close(nil)
		}
	})
}

// dispatch holds mu while delivering so frames reach the receiver in
// arrival order, backlog included.
func (c *DataChannel) dispatch(msg pion.DataChannelMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiver == nil {
		c.backlog = append(c.backlog, msg)
		return
	}
	deliver(c.receiver, msg)
}

func deliver(r *transfer.Receiver, msg pion.DataChannelMessage) {
	if msg.IsString {
		r.HandleText(msg.Data)
	} else {
		r.HandleBinary(msg.Data)
	}
}

// Bind routes text frames to r.HandleText and binary frames to
// r.HandleBinary, starting with any frames that arrived before the call.
// The receiver is closed when the channel closes.
func (c *DataChannel) Bind(r *transfer.Receiver) {
	c.mu.Lock()
	c.receiver = r
	backlog := c.backlog
	c.backlog = nil
	for _, msg := range backlog {
		deliver(r, msg)
	}
	c.mu.Unlock()

	select {
	case <-c.closed:
		r.Close(nil)
	default:
	}
}

// WaitOpen blocks until the channel opens.
func (c *DataChannel) WaitOpen(ctx context.Context) error {
	select {
	case <-c.open:
		return nil
	case <-c.closed:
		return transfer.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the channel closes.
func (c *DataChannel) Done() <-chan struct{} {
	return c.closed
}

func (c *DataChannel) Label() string {
	return c.raw.Label()
}

func (c *DataChannel) SendText(text string) error {
	if c.raw.ReadyState() != pion.DataChannelStateOpen {
		return transfer.ErrChannelClosed
	}
	if err := c.raw.SendText(text); err != nil {
		return fmt.Errorf("%w: %w", transfer.ErrChannelClosed, err)
	}
	return nil
}

func (c *DataChannel) Send(data []byte) error {
	if c.raw.ReadyState() != pion.DataChannelStateOpen {
		return transfer.ErrChannelClosed
	}
	if err := c.raw.Send(data); err != nil {
		return fmt.Errorf("%w: %w", transfer.ErrChannelClosed, err)
	}
	return nil
}

func (c *DataChannel) BufferedAmount() uint64 {
	return c.raw.BufferedAmount()
}

func (c *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	c.raw.SetBufferedAmountLowThreshold(th)
}

func (c *DataChannel) OnBufferedAmountLow(f func()) {
	c.raw.OnBufferedAmountLow(f)
}

// Close closes the underlying data channel.
func (c *DataChannel) Close() error {
	return c.raw.Close()
}
