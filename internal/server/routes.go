// Package server exposes the rendezvous broker over HTTP.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BioHazard786/warpcode/internal/broker"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Browsers and CLIs connect from anywhere; codes are the only gate.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const closeWait = time.Second

// Routes describes what the HTTP surface needs.
type Routes struct {
	Hub        *broker.Hub
	Gatherer   prometheus.Gatherer
	TrustProxy bool
	Logger     *zap.Logger
}

// Handler builds the mux serving /ws, /health, /stats and /metrics.
func (rt Routes) Handler() http.Handler {
	if rt.Logger == nil {
		rt.Logger = zap.NewNop()
	}
	if rt.Gatherer == nil {
		rt.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(rt.Hub, rt.TrustProxy, rt.Logger))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(rt.Hub))
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// Connections over the per-address cap get a rate_limited error and a
// policy-violation close.
func ServeWs(hub *broker.Hub, trustProxy bool, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("Failed to upgrade connection", zap.Error(err))
			return
		}

		addr := ClientAddr(r, trustProxy)
		if !hub.Admit(addr) {
			rejectConn(conn)
			return
		}

		client := broker.NewClient(hub, conn, addr)
		if !hub.Attach(client) {
			hub.Registry().Release(addr)
			conn.Close()
			return
		}

		// Start the client's read and write pumps in separate goroutines
		go client.WritePump()
		go client.ReadPump()
	}
}

func rejectConn(conn *websocket.Conn) {
	defer conn.Close()

	deadline := time.Now().Add(closeWait)
	conn.SetWriteDeadline(deadline)
	conn.WriteJSON(&broker.Message{Type: broker.TypeError, Error: broker.ErrorRateLimited})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Too many connections"),
		deadline)
}

// ClientAddr returns the admission key for r: the first X-Forwarded-For
// entry when trustProxy is set, else the host part of RemoteAddr.
func ClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UnixMilli(),
	})
}

func statsHandler(hub *broker.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Registry().Stats()
		writeJSON(w, map[string]any{
			"active_rooms":       stats.Rooms,
			"paired_rooms":       stats.Paired,
			"active_connections": stats.Connections,
			"timestamp":          time.Now().UnixMilli(),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
