package transfer

import "bytes"

// Status is the lifecycle position of one file transfer.
type Status int

const (
	StatusPending Status = iota
	StatusTransferring
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusTransferring:
		return "transferring"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// State tracks one file being received.
//
// Status only moves forward: pending, transferring, then complete or error.
// BytesReceived never decreases and never exceeds Size.
type State struct {
	FileID        string
	Name          string
	Size          int64
	ExpectedHash  string
	BytesReceived int64
	Status        Status
	Err           error

	buffer [][]byte
}

func newState(info FileInfo) *State {
	return &State{
		FileID:       info.FileID,
		Name:         info.Name,
		Size:         info.Size,
		ExpectedHash: info.Hash,
		Status:       StatusPending,
	}
}

// advance moves the state to next. It reports false, leaving the state
// unchanged, if that would move backwards or leave a terminal status.
func (s *State) advance(next Status) bool {
	if s.Status == StatusError || s.Status == StatusComplete {
		return false
	}
	if next != StatusError && next <= s.Status {
		return false
	}
	s.Status = next
	return true
}

func (s *State) fail(err error) bool {
	if !s.advance(StatusError) {
		return false
	}
	s.Err = err
	s.buffer = nil
	return true
}

// append buffers a chunk. A chunk that would overflow the declared size is
// rejected and leaves the counters untouched.
func (s *State) append(chunk []byte) error {
	if s.BytesReceived+int64(len(chunk)) > s.Size {
		return ErrSizeMismatch
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.buffer = append(s.buffer, buf)
	s.BytesReceived += int64(len(chunk))
	return nil
}

func (s *State) done() bool {
	return s.BytesReceived >= s.Size
}

func (s *State) terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusError
}

func (s *State) assemble() []byte {
	data := bytes.Join(s.buffer, nil)
	s.buffer = nil
	return data
}
