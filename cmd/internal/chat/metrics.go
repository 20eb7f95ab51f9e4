package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Core metrics. Registered on the default registry; exposed via /metrics.
var (
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "open_connections",
		Help:      "Number of live websocket connections.",
	})

	onlineUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "online_users",
		Help:      "Number of distinct users holding at least one connection.",
	})

	presenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "presence_broadcasts_total",
		Help:      "Presence fan-outs fired (one per online/offline transition).",
	})

	messagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "messages_delivered_total",
		Help:      "Message pushes enqueued to live connections.",
	})

	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "messages_dropped_total",
		Help:      "Message pushes dropped due to backpressure or shutdown.",
	})

	appendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "duplex",
		Subsystem: "chat",
		Name:      "append_duration_seconds",
		Help:      "Latency of message store appends.",
		Buckets:   prometheus.DefBuckets,
	})
)

// ObserveAppend records one store append latency sample.
func ObserveAppend(seconds float64) { appendDuration.Observe(seconds) }
