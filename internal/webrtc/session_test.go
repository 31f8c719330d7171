package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/signaling"
	"github.com/BioHazard786/warpcode/internal/transfer"
)

// pipe delivers payloads the way the broker would: as JSON, in order.
type pipe struct {
	out chan *signaling.SignalPayload
}

func newPipe() *pipe {
	return &pipe{out: make(chan *signaling.SignalPayload, 128)}
}

func (p *pipe) Signal(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var payload signaling.SignalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	p.out <- &payload
	return nil
}

func loopbackAPI() *pion.API {
	se := pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]pion.NetworkType{pion.NetworkTypeUDP4})
	return pion.NewAPI(pion.WithSettingEngine(se))
}

func newSessionPair(t *testing.T) (offerer, answerer *Session, ctx context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	toAnswerer, toOfferer := newPipe(), newPipe()
	api := loopbackAPI()

	offerer, err := NewSession(toAnswerer, SessionOptions{PeerOptions: PeerOptions{API: api}})
	require.NoError(t, err)
	answerer, err = NewSession(toOfferer, SessionOptions{PeerOptions: PeerOptions{API: api}})
	require.NoError(t, err)
	t.Cleanup(func() {
		offerer.Close()
		answerer.Close()
	})

	go offerer.Listen(ctx, toOfferer.out)
	go answerer.Listen(ctx, toAnswerer.out)
	return offerer, answerer, ctx
}

type collector struct {
	transfer.NopObserver
	mu    sync.Mutex
	files []transfer.File
	errs  []error
}

func (c *collector) OnFileComplete(f transfer.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
}

func (c *collector) OnFileError(_ transfer.FileInfo, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() ([]transfer.File, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transfer.File(nil), c.files...), append([]error(nil), c.errs...)
}

func TestSessionTransfersFiles(t *testing.T) {
	offerer, answerer, ctx := newSessionPair(t)

	out, err := offerer.OpenChannel()
	require.NoError(t, err)
	assert.Equal(t, ChannelLabel, out.Label())
	require.NoError(t, offerer.Offer())

	in, err := answerer.Accept(ctx)
	require.NoError(t, err)
	got := &collector{}
	in.Bind(transfer.NewReceiver(transfer.ReceiverOptions{Observer: got}))

	require.NoError(t, out.WaitOpen(ctx))
	require.NoError(t, in.WaitOpen(ctx))

	big := make([]byte, 300*1024)
	rand.New(rand.NewSource(7)).Read(big)

	sender := transfer.NewSender(out, transfer.SenderOptions{FileGap: time.Millisecond})
	require.NoError(t, sender.SendAll(ctx, []transfer.Source{
		{Name: "big.bin", Reader: bytes.NewReader(big)},
		{Name: "empty.txt", Reader: bytes.NewReader(nil)},
	}))

	require.Eventually(t, func() bool {
		files, _ := got.snapshot()
		return len(files) == 2
	}, 10*time.Second, 10*time.Millisecond)

	files, errs := got.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, "big.bin", files[0].Name)
	assert.True(t, bytes.Equal(big, files[0].Data))
	assert.Equal(t, "empty.txt", files[1].Name)
	assert.Empty(t, files[1].Data)
}

func TestSessionClose(t *testing.T) {
	offerer, answerer, ctx := newSessionPair(t)

	out, err := offerer.OpenChannel()
	require.NoError(t, err)
	require.NoError(t, offerer.Offer())
	_, err = answerer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, out.WaitOpen(ctx))

	require.NoError(t, out.Close())
	assert.ErrorIs(t, out.Send([]byte("late")), transfer.ErrChannelClosed)
	assert.ErrorIs(t, out.SendText("late"), transfer.ErrChannelClosed)

	require.NoError(t, offerer.Close())
	select {
	case <-offerer.Done():
	case <-time.After(time.Second):
		t.Fatal("session not done after Close")
	}
}

func TestBindReplaysEarlyFrames(t *testing.T) {
	offerer, answerer, ctx := newSessionPair(t)

	out, err := offerer.OpenChannel()
	require.NoError(t, err)
	require.NoError(t, offerer.Offer())
	require.NoError(t, out.WaitOpen(ctx))

	sender := transfer.NewSender(out, transfer.SenderOptions{})
	_, err = sender.SendFile(ctx, transfer.Source{Name: "early.txt", Reader: bytes.NewReader([]byte("sent before bind"))})
	require.NoError(t, err)

	in, err := answerer.Accept(ctx)
	require.NoError(t, err)
	// give the frames time to land in the backlog
	time.Sleep(100 * time.Millisecond)

	got := &collector{}
	in.Bind(transfer.NewReceiver(transfer.ReceiverOptions{Observer: got}))

	require.Eventually(t, func() bool {
		files, _ := got.snapshot()
		return len(files) == 1
	}, 5*time.Second, 10*time.Millisecond)
	files, _ := got.snapshot()
	assert.Equal(t, []byte("sent before bind"), files[0].Data)
}

func TestAcceptAfterClose(t *testing.T) {
	s, err := NewSession(newPipe(), SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Accept(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestHandleSignal(t *testing.T) {
	s, err := NewSession(newPipe(), SessionOptions{})
	require.NoError(t, err)
	defer s.Close()

	err = s.HandleSignal(&signaling.SignalPayload{Type: "pranswer", SDP: "v=0"})
	assert.ErrorIs(t, err, ErrUnexpectedSignal)

	mid := "0"
	err = s.HandleSignal(&signaling.SignalPayload{
		Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		SDPMid:    &mid,
	})
	require.NoError(t, err)
	s.mu.Lock()
	assert.Len(t, s.pending, 1, "candidates wait for the remote description")
	s.mu.Unlock()

	assert.NoError(t, s.HandleSignal(&signaling.SignalPayload{}))
}

func TestNewPeerConnectionPolicy(t *testing.T) {
	withTURN := &config.Config{STUNServer: config.DefaultSTUN, TURNServer: "turn.example.com", TURNUser: "u", TURNPass: "p"}
	noTURN := &config.Config{STUNServer: config.DefaultSTUN}

	pc, err := NewPeerConnection(PeerOptions{Config: withTURN, ForceRelay: true})
	require.NoError(t, err)
	defer pc.Close()
	conf := pc.GetConfiguration()
	assert.Equal(t, pion.ICETransportPolicyRelay, conf.ICETransportPolicy)
	require.Len(t, conf.ICEServers, 2)
	assert.Equal(t, "u", conf.ICEServers[1].Username)

	pc2, err := NewPeerConnection(PeerOptions{Config: noTURN, ForceRelay: true})
	require.NoError(t, err)
	defer pc2.Close()
	assert.Equal(t, pion.ICETransportPolicyAll, pc2.GetConfiguration().ICETransportPolicy)
}

func TestBehindTunnel(t *testing.T) {
	up := net.FlagUp
	cases := []struct {
		name   string
		ifaces []netInterface
		want   bool
	}{
		{"plain ethernet", []netInterface{{name: "eth0", flags: up, addrs: []net.Addr{&net.IPNet{IP: net.ParseIP("192.168.1.5")}}}}, false},
		{"wireguard", []netInterface{{name: "wg0", flags: up}}, true},
		{"down tunnel", []netInterface{{name: "tun0"}}, false},
		{"loopback", []netInterface{{name: "lo-tap", flags: up | net.FlagLoopback}}, false},
		{"cgnat address", []netInterface{{name: "en0", flags: up, addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("100.100.1.1")}}}}, true},
		{"just outside cgnat", []netInterface{{name: "en0", flags: up, addrs: []net.Addr{&net.IPNet{IP: net.ParseIP("100.128.0.1")}}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, behindTunnel(tc.ifaces))
		})
	}
}
