// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_grpc_requests_total",
			Help: "Total gRPC calls",
		},
		[]string{"method", "code"},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages persisted",
		},
		[]string{"kind"},
	)

	SendRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_send_rejected_total",
			Help: "Sends rejected before reaching the store",
		},
		[]string{"reason"},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Rooms created by get-or-create",
		},
	)

	BroadcastPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcast_published_total",
			Help: "Broadcast publish attempts",
		},
		[]string{"driver", "result"},
	)

	BroadcastLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_broadcast_publish_seconds",
			Help:    "Broadcast publish latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .25},
		},
		[]string{"driver"},
	)

	BroadcastOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_overflows_total",
			Help: "Subscriptions closed because their buffer was full",
		},
	)

	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_active_subscriptions",
			Help: "Open live subscriptions",
		},
		[]string{"driver"},
	)
)
