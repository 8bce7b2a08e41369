package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "neurobot",
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Live websocket connections.",
	})

	inboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "hub",
		Name:      "inbound_events_total",
		Help:      "Events received from clients by name.",
	}, []string{"event"})

	sentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "hub",
		Name:      "sent_events_total",
		Help:      "Events written to clients by name.",
	}, []string{"event"})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neurobot",
		Subsystem: "hub",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a client's egress buffer was full.",
	})
)
