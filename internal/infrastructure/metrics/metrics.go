package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rooms_created_total",
		Help: "Rooms created since start.",
	})

	RoomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rooms_expired_total",
		Help: "Rooms deleted by TTL expiry.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sotto_rooms_active",
		Help: "Live rooms in the registry.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sotto_clients_connected",
		Help: "Open WebSocket connections.",
	})

	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_messages_relayed_total",
		Help: "Opaque payloads relayed between peers.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
