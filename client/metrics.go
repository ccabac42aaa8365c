package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_feed_connection_attempts_total",
		Help: "The total number of connection attempts to the realtime websocket",
	})

	feedConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_feed_connection_errors_total",
		Help: "The total number of realtime connection errors encountered",
	})

	feedCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "noticeboard_feed_current_connections",
		Help: "The current number of open realtime websocket connections",
	})

	feedConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "noticeboard_feed_connection_duration_seconds",
		Help:    "Duration of realtime websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s, double each bucket, 10 buckets
	})

	feedEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "noticeboard_feed_events_received_total",
		Help: "Change events received from the realtime server by type",
	}, []string{"type"})
)
