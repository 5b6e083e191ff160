package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker-side counters. Labels keep cardinality low: topic is the topic
// pattern, not the expanded per-session name.
var (
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Subsystem: "realtime",
		Name:      "messages_received_total",
		Help:      "Inbound broker messages, per topic kind.",
	}, []string{"kind"})

	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Subsystem: "realtime",
		Name:      "messages_published_total",
		Help:      "Outbound broker messages, per topic kind.",
	}, []string{"kind"})

	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Subsystem: "realtime",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped: malformed payloads or publishes while disconnected.",
	}, []string{"reason"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codesync",
		Subsystem: "realtime",
		Name:      "reconnects_total",
		Help:      "Broker reconnection attempts.",
	})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Gateway HTTP requests by operation and outcome.",
	}, []string{"op", "outcome"})
)
