package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "collabnote"

// Metrics holds the Prometheus collectors of the realtime layer. A nil
// *Metrics records nothing.
type Metrics struct {
	sessions       prometheus.Gauge
	connections    prometheus.Gauge
	eventsReceived *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
	drops          *prometheus.CounterVec
	violations     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "document_sessions",
			Help:      "Number of documents with at least one connected member",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Number of open realtime connections",
		}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_received_total",
			Help:      "Client events received, by event type",
		}, []string{"event"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Broadcasts fanned out to a session, by event type",
		}, []string{"event"}),
		drops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_dropped_total",
			Help:      "Messages dropped because a recipient's send buffer was full",
		}, []string{"event"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_violations_total",
			Help:      "Client events ignored as protocol violations, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) received(event string) {
	if m != nil {
		m.eventsReceived.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) broadcast(event string) {
	if m != nil {
		m.broadcasts.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) dropped(event string) {
	if m != nil {
		m.drops.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) violation(reason string) {
	if m != nil {
		m.violations.WithLabelValues(reason).Inc()
	}
}
