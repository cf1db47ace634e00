package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOrderMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncCreated()
	m.IncTransition("PENDING", "PAID")
	m.IncTransition("PENDING", "PAID")
	m.IncLowStock("")
	m.AddPaidRevenue(87000)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "order_status_transitions_total", map[string]string{"from": "PENDING", "to": "PAID"}); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected transitions=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "inventory_low_stock_total", map[string]string{"subject": "unknown"}); err != nil {
		t.Fatalf("fetch low stock: %v", err)
	} else if got != 1 {
		t.Fatalf("expected low stock=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "orders_paid_revenue_total", nil); err != nil {
		t.Fatalf("fetch revenue: %v", err)
	} else if got != 87000 {
		t.Fatalf("expected revenue=87000, got %f", got)
	}
}

func TestPaymentMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncEvent("webhook", "APPROVED", "applied")
	m.IncAmountMismatch()
	m.ObserveGateway("ok", 120*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_events_total", map[string]string{"source": "webhook", "status": "APPROVED", "outcome": "applied"}); err != nil {
		t.Fatalf("fetch events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected events=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "payment_gateway_request_duration_seconds", map[string]string{"outcome": "ok"}); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("expire-pending-orders", 40*time.Millisecond, nil)
	m.ObserveRun("expire-pending-orders", 10*time.Millisecond, fmt.Errorf("db down"))
	m.AddAffected("expire-pending-orders", 3)
	m.AddAffected("expire-pending-orders", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, outcome := range []string{"success", "failure"} {
		got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", map[string]string{"job": "expire-pending-orders", "outcome": outcome})
		if err != nil {
			t.Fatalf("fetch %s runs: %v", outcome, err)
		}
		if got != 1 {
			t.Fatalf("expected one %s run, got %f", outcome, got)
		}
	}
	if got, err := fetchCounterValue(mfs, "maintenance_job_affected_total", map[string]string{"job": "expire-pending-orders"}); err != nil {
		t.Fatalf("fetch affected: %v", err)
	} else if got != 3 {
		t.Fatalf("expected affected=3, got %f", got)
	}
}

func TestOutboxMetricsLabelsReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncDelivered("order_created")
	m.IncRetried("order_created")
	m.IncParked("order_created", "max_attempts")
	m.IncParked("", "")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_parked_total", map[string]string{"event_type": "order_created", "reason": "max_attempts"}); err != nil {
		t.Fatalf("fetch parked: %v", err)
	} else if got != 1 {
		t.Fatalf("expected parked=1, got %f", got)
	}
	if _, err := fetchCounterValue(mfs, "outbox_events_parked_total", map[string]string{"event_type": "unknown", "reason": "unknown"}); err != nil {
		t.Fatalf("expected blank labels to normalize: %v", err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var orders *OrderMetrics
	orders.IncCreated()
	orders.IncTransition("a", "b")
	var payments *PaymentMetrics
	payments.IncEvent("webhook", "APPROVED", "applied")
	NewOrderMetrics(nil).IncRejected("create", "X")
	var jobs *JobMetrics
	jobs.ObserveRun("x", time.Second, nil)
	NewJobMetrics(nil).AddAffected("x", 1)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric, nil
			}
		}
	}
	return nil, fmt.Errorf("metric %s with labels %v not found", name, labels)
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if pair.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
