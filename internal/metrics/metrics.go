// Package metrics exposes Prometheus collectors for the realtime layer.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gobychat"

// Delivery outcomes.
const (
	DeliveryOK      = "delivered"
	DeliveryDropped = "dropped"
)

// Metrics groups the collectors updated by the registry, broadcaster and
// dispatcher.
type Metrics struct {
	connections        prometheus.Gauge
	onlineIdentities   prometheus.Gauge
	presenceBroadcasts prometheus.Counter
	messagesPersisted  prometheus.Counter
	sendFailures       *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Number of registered realtime connections.",
		}),
		onlineIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_identities",
			Help:      "Number of identities with at least one live connection.",
		}),
		presenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_broadcasts_total",
			Help:      "Presence updates fanned out to connections.",
		}),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Messages durably recorded by the dispatcher.",
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Rejected sends by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames pushed to live connections by kind and outcome.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(
		m.connections,
		m.onlineIdentities,
		m.presenceBroadcasts,
		m.messagesPersisted,
		m.sendFailures,
		m.deliveries,
	)
	return m
}

// SetConnections records the registry size after a mutation.
func (m *Metrics) SetConnections(conns, identities int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(conns))
	m.onlineIdentities.Set(float64(identities))
}

func (m *Metrics) PresenceBroadcast() {
	if m == nil {
		return
	}
	m.presenceBroadcasts.Inc()
}

func (m *Metrics) MessagePersisted() {
	if m == nil {
		return
	}
	m.messagesPersisted.Inc()
}

// SendFailed counts a send rejected for reason (invalid_payload, persistence).
func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

// Delivery counts one push of kind (message, presence) with its result.
func (m *Metrics) Delivery(kind, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}
