package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts what the relay did with each outbox row.
type OutboxMetrics struct {
	delivered *prometheus.CounterVec
	retried   *prometheus.CounterVec
	parked    *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_delivered_total",
		Help: "Outbox rows acknowledged by Pub/Sub.",
	}, []string{"event_type"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_retried_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_parked_total",
		Help: "Outbox rows parked without further retries, by reason.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(delivered, retried, parked)
	return &OutboxMetrics{delivered: delivered, retried: retried, parked: parked}
}

func (m *OutboxMetrics) IncDelivered(eventType string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncRetried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncParked(eventType, reason string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
