package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcode/internal/broker"
	"github.com/BioHazard786/warpcode/internal/registry"
)

type testServer struct {
	*httptest.Server
	hub *broker.Hub
}

func newTestServer(t *testing.T, maxConns int, trustProxy bool) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	hub := broker.NewHub(broker.Options{
		Registry: registry.Options{MaxConnsPerAddr: maxConns},
		Metrics:  broker.NewMetrics(reg),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(Routes{Hub: hub, Gatherer: reg, TrustProxy: trustProxy}.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) broker.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg broker.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketPairing(t *testing.T) {
	srv := newTestServer(t, 10, false)
	x := srv.dial(t, nil)
	y := srv.dial(t, nil)

	require.NoError(t, x.WriteJSON(map[string]string{"type": "create"}))
	created := readMessage(t, x)
	require.Equal(t, broker.TypeCreated, created.Type)

	require.NoError(t, y.WriteJSON(map[string]string{"type": "join", "code": created.Code}))
	assert.Equal(t, broker.TypeJoined, readMessage(t, y).Type)
	assert.Equal(t, broker.TypePeerJoined, readMessage(t, x).Type)

	require.NoError(t, x.WriteMessage(websocket.TextMessage, []byte(`{"type":"signal","data":{"type":"offer","sdp":"v=0"}}`)))
	sig := readMessage(t, y)
	assert.Equal(t, broker.TypeSignal, sig.Type)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(sig.Data))

	require.NoError(t, y.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, broker.TypePong, readMessage(t, y).Type)
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	srv := newTestServer(t, 10, false)
	conn := srv.dial(t, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, broker.TypePong, readMessage(t, conn).Type)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, 2, false)
	for range 2 {
		ok := srv.dial(t, nil)
		require.NoError(t, ok.WriteJSON(map[string]string{"type": "ping"}))
		readMessage(t, ok)
	}

	conn := srv.dial(t, nil)
	msg := readMessage(t, conn)
	assert.Equal(t, broker.TypeError, msg.Type)
	assert.Equal(t, broker.ErrorRateLimited, msg.Error)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestRateLimitReleasesOnDisconnect(t *testing.T) {
	srv := newTestServer(t, 1, false)

	first := srv.dial(t, nil)
	require.NoError(t, first.WriteJSON(map[string]string{"type": "ping"}))
	readMessage(t, first)
	first.Close()

	require.Eventually(t, func() bool {
		return srv.hub.Registry().Stats().Connections == 0
	}, 5*time.Second, 10*time.Millisecond)

	second := srv.dial(t, nil)
	require.NoError(t, second.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, broker.TypePong, readMessage(t, second).Type)
}

func TestForwardedForCountsPerClient(t *testing.T) {
	srv := newTestServer(t, 1, true)

	a := srv.dial(t, http.Header{"X-Forwarded-For": {"203.0.113.1, 10.0.0.1"}})
	b := srv.dial(t, http.Header{"X-Forwarded-For": {"203.0.113.2"}})
	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		assert.Equal(t, broker.TypePong, readMessage(t, conn).Type)
	}

	c := srv.dial(t, http.Header{"X-Forwarded-For": {"203.0.113.1"}})
	assert.Equal(t, broker.ErrorRateLimited, readMessage(t, c).Error)
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "192.0.2.9:51234"
	r.Header.Set("X-Forwarded-For", " 198.51.100.4 , 10.0.0.1")

	assert.Equal(t, "198.51.100.4", ClientAddr(r, true))
	assert.Equal(t, "192.0.2.9", ClientAddr(r, false))

	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.9", ClientAddr(r, true))
}

func TestHealthStatsAndMetrics(t *testing.T) {
	srv := newTestServer(t, 10, false)
	conn := srv.dial(t, nil)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "create"}))
	readMessage(t, conn)

	var health map[string]any
	getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, true, health["ok"])
	assert.Contains(t, health, "timestamp")

	var stats map[string]any
	getJSON(t, srv.URL+"/stats", &stats)
	assert.Equal(t, float64(1), stats["active_rooms"])
	assert.Equal(t, float64(1), stats["active_connections"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "warpcode_sessions_created_total 1")
	assert.Contains(t, string(body), "warpcode_rooms_active 1")
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
