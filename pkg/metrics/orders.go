package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics records order lifecycle and inventory signals.
type OrderMetrics struct {
	created      prometheus.Counter
	transitions  *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	lowStock     *prometheus.CounterVec
	orderRevenue prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders persisted in PENDING status.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_rejections_total",
		Help: "Order operations rejected before commit, by error code.",
	}, []string{"operation", "code"})
	lowStock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_low_stock_total",
		Help: "Sales that left a variant or input at or below its minimum stock.",
	}, []string{"subject"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_revenue_total",
		Help: "Sum of order totals that reached PAID, in store currency units.",
	})
	reg.MustRegister(created, transitions, rejected, lowStock, revenue)
	return &OrderMetrics{
		created:      created,
		transitions:  transitions,
		rejected:     rejected,
		lowStock:     lowStock,
		orderRevenue: revenue,
	}
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) IncRejected(operation, code string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

func (m *OrderMetrics) IncLowStock(subject string) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.WithLabelValues(normalizeLabel(subject)).Inc()
}

func (m *OrderMetrics) AddPaidRevenue(total int64) {
	if m == nil || m.orderRevenue == nil || total <= 0 {
		return
	}
	m.orderRevenue.Add(float64(total))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
