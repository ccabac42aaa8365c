package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "noticeboard_realtime_active_subscriptions",
		Help: "The current number of topic subscriptions across all sockets",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "noticeboard_realtime_connections",
		Help: "The current number of open realtime websockets",
	})

	eventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_realtime_events_broadcast_total",
		Help: "Change events handed to a subscription",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_realtime_events_dropped_total",
		Help: "Change events that did not fit a subscriber buffer",
	})

	rejectedConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "noticeboard_realtime_rejected_connections_total",
		Help: "Websocket upgrades refused, by reason",
	}, []string{"reason"})
)
