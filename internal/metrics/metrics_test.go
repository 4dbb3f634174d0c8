package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := MustNewMetrics(registry)

	m.IncDelivery("delivered")
	m.IncDelivery("delivered")
	m.IncDelivery("failed")
	m.IncEscalation("critical")
	m.IncDecision("consensus")
	m.IncStepEvent("completed")
	m.ObserveStepDuration("analysis", 3*time.Second)
	m.IncActiveTasks()
	m.IncActiveTasks()
	m.DecActiveTasks()

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("delivered")); got != 2 {
		t.Errorf("delivered count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.escalations.WithLabelValues("critical")); got != 1 {
		t.Errorf("escalation count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("consensus")); got != 1 {
		t.Errorf("decision count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasksActive); got != 1 {
		t.Errorf("active tasks = %v, want 1", got)
	}
}

func TestMustNewMetricsReusesExistingCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := MustNewMetrics(registry)
	second := MustNewMetrics(registry)

	first.IncDelivery("delivered")
	second.IncDelivery("delivered")

	if got := testutil.ToFloat64(second.deliveries.WithLabelValues("delivered")); got != 2 {
		t.Errorf("shared counter = %v, want 2 (collectors should be reused)", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncDelivery("delivered")
	m.IncEscalation("high")
	m.IncDecision("disputed")
	m.IncStepEvent("failed")
	m.ObserveStepDuration("synthesis", time.Second)
	m.IncActiveTasks()
	m.DecActiveTasks()
	m.IncActiveThreads()
	m.DecActiveThreads()
}
