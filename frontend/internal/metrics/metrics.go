// Package metrics holds the client's Prometheus collectors and the optional
// debug HTTP server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of applying a pushed message to the open conversation.
const (
	OutcomeIgnored    = "ignored"
	OutcomeDuplicate  = "duplicate"
	OutcomeReconciled = "reconciled"
	OutcomeAppended   = "appended"
	OutcomeBuffered   = "buffered"
)

var (
	SocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_socket_events_total",
			Help: "Push events received, by event name",
		},
		[]string{"event"},
	)

	SocketReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmchat_socket_reconnects_total",
			Help: "Reconnect attempts scheduled after a lost or failed connection",
		},
	)

	SocketConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmchat_socket_connected",
			Help: "1 while the socket is connected",
		},
	)

	IncomingMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_incoming_messages_total",
			Help: "Pushed messages by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	PendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmchat_pending_messages",
			Help: "Optimistic messages still waiting for server confirmation",
		},
	)

	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_sends_total",
			Help: "Outbound message sends by kind and result",
		},
		[]string{"kind", "result"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_uploads_total",
			Help: "Attachment uploads by result",
		},
		[]string{"result"},
	)
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
