package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records reconciliation outcomes and gateway latency.
type PaymentMetrics struct {
	events          *prometheus.CounterVec
	amountMismatch  prometheus.Counter
	gatewayDuration *prometheus.HistogramVec
}

// NewPaymentMetrics registers the reconciliation metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Gateway transaction events by source, gateway status and outcome.",
	}, []string{"source", "status", "outcome"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_amount_mismatch_total",
		Help: "Gateway events whose amount differed from the order total.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Duration of payment gateway API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(events, mismatch, duration)
	return &PaymentMetrics{
		events:          events,
		amountMismatch:  mismatch,
		gatewayDuration: duration,
	}
}

func (m *PaymentMetrics) IncEvent(source, status, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(source), normalizeLabel(status), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncAmountMismatch() {
	if m == nil || m.amountMismatch == nil {
		return
	}
	m.amountMismatch.Inc()
}

func (m *PaymentMetrics) ObserveGateway(outcome string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}
