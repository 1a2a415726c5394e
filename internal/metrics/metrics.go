// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parlor"

var (
	Intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Client intents processed by the router, by type.",
		},
		[]string{"type"},
	)
	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Outbound events delivered to connections, by type.",
		},
		[]string{"type"},
	)
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Intents rejected with an error event, by kind.",
		},
		[]string{"kind"},
	)
	FramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames refused by a full connection buffer.",
		},
	)
	ParticipantsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_online",
			Help:      "Participants currently online.",
		},
	)
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Bound websocket connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(Intents, Events, Rejections, FramesDropped, ParticipantsOnline, Connections)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
