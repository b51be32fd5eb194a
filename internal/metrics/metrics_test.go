package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetConnections(3, 2)
	m.PresenceBroadcast()
	m.MessagePersisted()
	m.MessagePersisted()
	m.SendFailed("invalid_payload")
	m.Delivery("message", DeliveryOK)
	m.Delivery("message", DeliveryDropped)
	m.Delivery("message", DeliveryDropped)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.onlineIdentities))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.presenceBroadcasts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesPersisted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures.WithLabelValues("invalid_payload")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("message", DeliveryDropped)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetConnections(1, 1)
		m.PresenceBroadcast()
		m.MessagePersisted()
		m.SendFailed("persistence")
		m.Delivery("presence", DeliveryOK)
	})
}
