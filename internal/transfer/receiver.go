package transfer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	Observer Observer
	Logger   *zap.Logger
}

// Receiver reassembles files from the frames of a Channel. Frames for one
// file arrive in order, and files arrive one after another.
//
// HandleText, HandleBinary and Close may be called from different
// goroutines. Observer callbacks run with the receiver locked.
type Receiver struct {
	mu     sync.Mutex
	active *State
	closed bool

	obs Observer
	log *zap.Logger
}

func NewReceiver(opts ReceiverOptions) *Receiver {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Receiver{obs: opts.Observer, log: opts.Logger}
}

// Active returns a copy of the in-flight transfer state, if any.
func (r *Receiver) Active() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return State{}, false
	}
	s := *r.active
	s.buffer = nil
	return s, true
}

// HandleText processes one control frame.
func (r *Receiver) HandleText(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		r.log.Debug("Ignoring control frame", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	switch msg.Type {
	case MessageTypeFileInfo:
		r.start(msg.FileInfo)
	case MessageTypeFileComplete:
		r.complete(msg.FileID)
	}
}

// HandleBinary appends one chunk to the active file.
func (r *Receiver) HandleBinary(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.active
	if r.closed || st == nil || st.terminal() {
		r.log.Debug("Dropping chunk with no active file", zap.Int("bytes", len(data)))
		return
	}

	if err := st.append(data); err != nil {
		r.fail(st, &TransferError{
			Op:      "receive",
			File:    st.Name,
			Err:     err,
			Details: fmt.Sprintf("chunk of %d bytes past declared size %d", len(data), st.Size),
		})
		return
	}
	r.obs.OnProgress(infoOf(st), st.BytesReceived)

	if st.done() {
		r.finalize(st)
	}
}

// Close fails the in-flight file with err, or ErrChannelClosed if err is
// nil. Frames arriving afterwards are ignored.
func (r *Receiver) Close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if err == nil {
		err = ErrChannelClosed
	} else if !errors.Is(err, ErrChannelClosed) {
		err = fmt.Errorf("%w: %w", ErrChannelClosed, err)
	}

	if st := r.active; st != nil && !st.terminal() {
		r.fail(st, NewFileError("receive", st.Name, err))
	}
}

func (r *Receiver) start(info FileInfo) {
	if prev := r.active; prev != nil && !prev.terminal() {
		r.fail(prev, NewFileError("receive", prev.Name, ErrInterruptedTransfer))
	}

	st := newState(info)
	st.advance(StatusTransferring)
	r.active = st

	r.log.Debug("Receiving file",
		zap.String("file", info.Name),
		zap.Int64("size", info.Size),
		zap.String("hash", info.Hash))
	r.obs.OnFileStart(info)
}

func (r *Receiver) complete(fileID string) {
	st := r.active
	if st == nil || st.FileID != fileID {
		r.log.Debug("Ignoring completion for unknown file", zap.String("fileId", fileID))
		return
	}
	if st.terminal() {
		return
	}

	if !st.done() {
		r.fail(st, &TransferError{
			Op:      "receive",
			File:    st.Name,
			Err:     ErrSizeMismatch,
			Details: fmt.Sprintf("completed at %d of %d bytes", st.BytesReceived, st.Size),
		})
		return
	}
	r.finalize(st)
}

// finalize verifies the reassembled bytes against the announced digest.
func (r *Receiver) finalize(st *State) {
	data := st.assemble()

	if got := HashBytes(data); got != st.ExpectedHash {
		r.fail(st, &TransferError{
			Op:      "verify",
			File:    st.Name,
			Err:     ErrHashMismatch,
			Details: fmt.Sprintf("expected %s, got %s", st.ExpectedHash, got),
		})
		return
	}

	st.advance(StatusComplete)
	r.log.Debug("File verified", zap.String("file", st.Name))
	r.obs.OnFileComplete(File{
		ID:   st.FileID,
		Name: st.Name,
		Size: st.Size,
		Hash: st.ExpectedHash,
		Data: data,
	})
}

func (r *Receiver) fail(st *State, err error) {
	if !st.fail(err) {
		return
	}
	r.log.Warn("File transfer failed", zap.String("file", st.Name), zap.Error(err))
	r.obs.OnFileError(infoOf(st), err)
}

func infoOf(st *State) FileInfo {
	return FileInfo{FileID: st.FileID, Name: st.Name, Size: st.Size, Hash: st.ExpectedHash}
}
