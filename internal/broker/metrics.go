package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "warpcode"

// Metrics holds the broker's prometheus collectors.
type Metrics struct {
	RoomsActive       prometheus.Gauge
	ConnectionsActive prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsJoined    prometheus.Counter
	SessionsExpired   prometheus.Counter
	SignalsRelayed    prometheus.Counter
	SignalsDropped    prometheus.Counter
	Errors            *prometheus.CounterVec
}

// NewMetrics creates the broker collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rooms_active",
			Help:      "Number of rooms currently held by the registry.",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of admitted signaling connections.",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Rooms created.",
		}),
		SessionsJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_joined_total",
			Help:      "Successful joins.",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_expired_total",
			Help:      "Rooms removed by the periodic sweep.",
		}),
		SignalsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signals_relayed_total",
			Help:      "Negotiation payloads forwarded to a counterpart.",
		}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signals_dropped_total",
			Help:      "Negotiation payloads dropped for lack of a room or counterpart.",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "error_replies_total",
			Help:      "Typed error replies sent to clients.",
		}, []string{"error"}),
	}
}
