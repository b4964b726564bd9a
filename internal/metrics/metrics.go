// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DemoReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_demo_replies_total",
			Help: "Demo chat replies by the rule that produced them",
		},
		[]string{"rule"},
	)

	DemoRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_demo_rejected_total",
			Help: "Demo chat requests rejected before a reply was produced",
		},
		[]string{"reason"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_webhook_events_total",
			Help: "Normalised webhook events processed",
		},
		[]string{"channel", "kind"},
	)

	AgentReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_agent_replies_total",
			Help: "Production agent replies by branch",
		},
		[]string{"branch"},
	)

	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_outbound_messages_total",
			Help: "Outbound delivery attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	DemoReplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forge_demo_reply_duration_seconds",
			Help:    "Time spent computing a demo reply, excluding the think delay",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)
