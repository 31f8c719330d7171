package transfer

import (
	"sync"
)

type frame struct {
	text   bool
	data   []byte
	before uint64 // buffered amount when the frame was sent
}

// fakeChannel records frames and simulates a send buffer. With autoDrain
// the buffer empties after every send; otherwise the test drains it.
type fakeChannel struct {
	mu        sync.Mutex
	frames    []frame
	buffered  uint64
	autoDrain bool
	sendErr   error

	receiver *Receiver
}

func newLoopback(r *Receiver) *fakeChannel {
	return &fakeChannel{autoDrain: true, receiver: r}
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	if c.sendErr != nil {
		c.mu.Unlock()
		return c.sendErr
	}
	c.frames = append(c.frames, frame{text: true, data: []byte(text), before: c.buffered})
	c.mu.Unlock()

	if c.receiver != nil {
		c.receiver.HandleText([]byte(text))
	}
	return nil
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	if c.sendErr != nil {
		c.mu.Unlock()
		return c.sendErr
	}
	buf := append([]byte(nil), data...)
	c.frames = append(c.frames, frame{data: buf, before: c.buffered})
	if !c.autoDrain {
		c.buffered += uint64(len(buf))
	}
	c.mu.Unlock()

	if c.receiver != nil {
		c.receiver.HandleBinary(buf)
	}
	return nil
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *fakeChannel) setBuffered(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffered = n
}

func (c *fakeChannel) drain(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.buffered {
		n = c.buffered
	}
	c.buffered -= n
}

func (c *fakeChannel) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeChannel) snapshot() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.frames...)
}

// notifyingChannel adds edge-triggered drain notification.
type notifyingChannel struct {
	*fakeChannel
	lowThreshold uint64
	onLow        func()
}

func (c *notifyingChannel) SetBufferedAmountLowThreshold(th uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lowThreshold = th
}

func (c *notifyingChannel) OnBufferedAmountLow(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLow = f
}

func (c *notifyingChannel) drain(n uint64) {
	c.mu.Lock()
	before := c.buffered
	if n > c.buffered {
		n = c.buffered
	}
	c.buffered -= n
	fire := before > c.lowThreshold && c.buffered <= c.lowThreshold
	cb := c.onLow
	c.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

type event struct {
	kind  string
	info  FileInfo
	bytes int64
	file  File
	err   error
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnFileStart(info FileInfo) { r.add(event{kind: "start", info: info}) }

func (r *recorder) OnProgress(info FileInfo, n int64) {
	r.add(event{kind: "progress", info: info, bytes: n})
}

func (r *recorder) OnFileComplete(f File) { r.add(event{kind: "complete", file: f}) }

func (r *recorder) OnFileError(info FileInfo, err error) {
	r.add(event{kind: "error", info: info, err: err})
}

func (r *recorder) of(kind string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}
