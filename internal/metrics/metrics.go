// Package metrics exposes the transport's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors for the transport layer.
type Metrics struct {
	mqttConnectionStatus prometheus.Gauge
	mqttReconnectsTotal  prometheus.Counter

	messagesTotal  *prometheus.CounterVec
	publishesTotal *prometheus.CounterVec

	subscriptionsActive       prometheus.Gauge
	pendingSubscriptions      prometheus.Gauge
	subscriptionFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all transport metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		mqttConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connection_status",
			Help: "Current MQTT broker connection status (1 connected, 0 disconnected)",
		}),
		mqttReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_reconnects_total",
			Help: "Total number of broker connection losses",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_messages_total",
			Help: "Inbound messages by status (received, delivered, dropped)",
		}, []string{"status"}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_publishes_total",
			Help: "Published messages by status (success, error)",
		}, []string{"status"}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_subscriptions_active",
			Help: "Number of registered topic filters",
		}),
		pendingSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_subscriptions_pending",
			Help: "Broker subscribes awaiting acknowledgement",
		}),
		subscriptionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_subscription_failures_total",
			Help: "Subscription failures by reason (timeout, unexpected_qos)",
		}, []string{"reason"}),
	}

	collectors := []prometheus.Collector{
		m.mqttConnectionStatus,
		m.mqttReconnectsTotal,
		m.messagesTotal,
		m.publishesTotal,
		m.subscriptionsActive,
		m.pendingSubscriptions,
		m.subscriptionFailuresTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// SetMQTTConnectionStatus records the broker connection state.
func (m *Metrics) SetMQTTConnectionStatus(connected bool) {
	if connected {
		m.mqttConnectionStatus.Set(1)
	} else {
		m.mqttConnectionStatus.Set(0)
	}
}

// IncMQTTReconnects counts a broker connection loss.
func (m *Metrics) IncMQTTReconnects() {
	m.mqttReconnectsTotal.Inc()
}

// IncMessagesTotal counts an inbound message by status.
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// IncPublishesTotal counts a publish attempt by status.
func (m *Metrics) IncPublishesTotal(status string) {
	m.publishesTotal.WithLabelValues(status).Inc()
}

// SetSubscriptionsActive records the registry size.
func (m *Metrics) SetSubscriptionsActive(n float64) {
	m.subscriptionsActive.Set(n)
}

// SetPendingSubscriptions records the pending-ack table size.
func (m *Metrics) SetPendingSubscriptions(n float64) {
	m.pendingSubscriptions.Set(n)
}

// IncSubscriptionFailures counts a subscription failure by reason.
func (m *Metrics) IncSubscriptionFailures(reason string) {
	m.subscriptionFailuresTotal.WithLabelValues(reason).Inc()
}
