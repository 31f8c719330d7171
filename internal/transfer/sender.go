package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Source is one file to send. Reader is read twice: once to hash and once
// to chunk.
type Source struct {
	Name   string
	Reader io.ReadSeeker
}

// SenderOptions configures a Sender. Zero values fall back to the defaults.
type SenderOptions struct {
	Observer Observer
	Logger   *zap.Logger
	Clock    clock.Clock

	ChunkSize       int
	BufferThreshold uint64
	PollInterval    time.Duration
	FileGap         time.Duration
	SendTimeout     time.Duration
}

// Sender pushes files over a Channel one at a time, pausing whenever the
// channel's send buffer is at or above the threshold.
type Sender struct {
	channel Channel
	obs     Observer
	log     *zap.Logger
	clock   clock.Clock

	buffer      []byte
	threshold   uint64
	poll        time.Duration
	gap         time.Duration
	sendTimeout time.Duration

	// low is signalled by the channel's drain notification, if it has one.
	low chan struct{}
}

func NewSender(ch Channel, opts SenderOptions) *Sender {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = ChunkSize
	}
	if opts.BufferThreshold == 0 {
		opts.BufferThreshold = BufferThreshold
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = PollInterval
	}
	if opts.FileGap <= 0 {
		opts.FileGap = FileGap
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = SendTimeout
	}

	s := &Sender{
		channel:     ch,
		obs:         opts.Observer,
		log:         opts.Logger,
		clock:       opts.Clock,
		buffer:      make([]byte, opts.ChunkSize),
		threshold:   opts.BufferThreshold,
		poll:        opts.PollInterval,
		gap:         opts.FileGap,
		sendTimeout: opts.SendTimeout,
		low:         make(chan struct{}, 1),
	}

	if ln, ok := ch.(LowNotifier); ok {
		ln.SetBufferedAmountLowThreshold(opts.BufferThreshold / 2)
		ln.OnBufferedAmountLow(func() {
			select {
			case s.low <- struct{}{}:
			default:
			}
		})
	}
	return s
}

// SendAll sends every source in order with a short gap between files. A
// failed file does not stop the queue unless the channel itself is gone.
// The returned error combines the failures of all files.
func (s *Sender) SendAll(ctx context.Context, sources []Source) error {
	var errs error
	for i, src := range sources {
		if i > 0 {
			if err := s.sleep(ctx, s.gap); err != nil {
				return multierr.Append(errs, err)
			}
		}

		if _, err := s.SendFile(ctx, src); err != nil {
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil || errors.Is(err, ErrChannelClosed) {
				return errs
			}
		}
	}
	return errs
}

// SendFile hashes src, announces it, streams its chunks and marks it
// complete. The whole file is never held in memory.
func (s *Sender) SendFile(ctx context.Context, src Source) (FileInfo, error) {
	info := FileInfo{Name: src.Name}

	hash, size, err := HashReader(src.Reader)
	if err != nil {
		return info, s.failed(info, NewFileError("hash", src.Name, err))
	}
	if _, err := src.Reader.Seek(0, io.SeekStart); err != nil {
		return info, s.failed(info, NewFileError("rewind", src.Name, err))
	}

	info.FileID = fmt.Sprintf("%s-%d", src.Name, s.clock.Now().UnixMilli())
	info.Size = size
	info.Hash = hash

	if err := SendFileInfo(s.channel, info); err != nil {
		return info, s.failed(info, NewFileError("send file info", src.Name, err))
	}
	s.obs.OnFileStart(info)
	s.log.Debug("Sending file",
		zap.String("file", info.Name),
		zap.Int64("size", info.Size),
		zap.String("hash", info.Hash))

	if err := s.sendChunks(ctx, info, io.LimitReader(src.Reader, size)); err != nil {
		return info, s.failed(info, err)
	}

	if err := SendFileComplete(s.channel, info.FileID); err != nil {
		return info, s.failed(info, NewFileError("send file complete", src.Name, err))
	}

	s.obs.OnFileComplete(File{ID: info.FileID, Name: info.Name, Size: info.Size, Hash: info.Hash})
	return info, nil
}

func (s *Sender) sendChunks(ctx context.Context, info FileInfo, r io.Reader) error {
	var sent int64
	for sent < info.Size {
		if err := ctx.Err(); err != nil {
			return NewFileError("send", info.Name, err)
		}
		if err := s.WaitForWindow(ctx); err != nil {
			return NewFileError("send", info.Name, err)
		}

		n, err := io.ReadFull(r, s.buffer)
		if n > 0 {
			if err := s.channel.Send(s.buffer[:n]); err != nil {
				return NewFileError("send chunk", info.Name, err)
			}
			sent += int64(n)
			s.obs.OnProgress(info, sent)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return NewFileError("read", info.Name, err)
		}
	}

	if sent != info.Size {
		return &TransferError{
			Op:      "read",
			File:    info.Name,
			Err:     ErrSizeMismatch,
			Details: fmt.Sprintf("file shrank to %d of %d bytes", sent, info.Size),
		}
	}
	return nil
}

// WaitForWindow blocks while the channel's buffered amount is at or above
// the threshold. It wakes on the drain notification or the poll ticker,
// and gives up if the buffer does not shrink within the send timeout.
func (s *Sender) WaitForWindow(ctx context.Context) error {
	buffered := s.channel.BufferedAmount()
	if buffered < s.threshold {
		return nil
	}

	ticker := s.clock.Ticker(s.poll)
	defer ticker.Stop()
	deadline := s.clock.Timer(s.sendTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.low:
		case <-ticker.C:
		case <-deadline.C:
			now := s.channel.BufferedAmount()
			if now >= buffered {
				return WrapError("send", ErrBufferTimeout, "buffer not draining")
			}
			buffered = now
			deadline.Reset(s.sendTimeout)
		}

		if s.channel.BufferedAmount() < s.threshold {
			return nil
		}
	}
}

// Drain waits until everything queued on the channel has been flushed, so
// the caller can close it without losing the tail of the last file.
func (s *Sender) Drain(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DrainTimeout
	}

	ticker := s.clock.Ticker(drainPollInterval)
	defer ticker.Stop()
	deadline := s.clock.Timer(timeout)
	defer deadline.Stop()

	for s.channel.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return WrapError("drain", ErrBufferTimeout,
				fmt.Sprintf("%d bytes still buffered", s.channel.BufferedAmount()))
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Sender) failed(info FileInfo, err error) error {
	s.log.Warn("File transfer failed", zap.String("file", info.Name), zap.Error(err))
	s.obs.OnFileError(info, err)
	return err
}

func (s *Sender) sleep(ctx context.Context, d time.Duration) error {
	t := s.clock.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
