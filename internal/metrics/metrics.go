// Package metrics exposes Prometheus collectors for orchestration activity:
// message delivery outcomes, escalations, decision outcomes, step lifecycle
// transitions, and the number of tasks currently executing. All observation
// methods are nil-safe so callers can skip wiring metrics entirely.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors registered for a single orchestrator process.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	stepEvents    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	tasksActive   prometheus.Gauge
	threadsActive prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics instance registered with the
// global Prometheus registry. The collectors are created only once so that
// constructing several routers or schedulers in the same process does not
// panic with duplicate registrations.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Tests pass a fresh registry to keep metric names isolated. Registration
// errors other than AlreadyRegisteredError panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	deliveries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundtable",
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Per-recipient message delivery attempts by final status.",
		},
		[]string{"status"},
	)
	escalations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundtable",
			Subsystem: "router",
			Name:      "escalations_total",
			Help:      "Escalations fired for unanswered messages, by priority.",
		},
		[]string{"priority"},
	)
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundtable",
			Subsystem: "consensus",
			Name:      "decisions_total",
			Help:      "Decisions closed, by outcome (consensus, plurality, disputed).",
		},
		[]string{"outcome"},
	)
	stepEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundtable",
			Subsystem: "scheduler",
			Name:      "step_events_total",
			Help:      "Reasoning step lifecycle transitions, by resulting status.",
		},
		[]string{"status"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roundtable",
			Subsystem: "scheduler",
			Name:      "step_duration_seconds",
			Help:      "Wall time from step start to completion, by step kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roundtable",
			Subsystem: "scheduler",
			Name:      "tasks_active",
			Help:      "Number of collaborative tasks currently executing.",
		},
	)
	threadsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roundtable",
			Subsystem: "threads",
			Name:      "conversations_active",
			Help:      "Number of conversation threads not yet archived.",
		},
	)

	collectors := []prometheus.Collector{
		deliveries, escalations, decisions, stepEvents, stepDuration, tasksActive, threadsActive,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case deliveries:
					deliveries = already.ExistingCollector.(*prometheus.CounterVec)
				case escalations:
					escalations = already.ExistingCollector.(*prometheus.CounterVec)
				case decisions:
					decisions = already.ExistingCollector.(*prometheus.CounterVec)
				case stepEvents:
					stepEvents = already.ExistingCollector.(*prometheus.CounterVec)
				case stepDuration:
					stepDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case tasksActive:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				case threadsActive:
					threadsActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		deliveries:    deliveries,
		escalations:   escalations,
		decisions:     decisions,
		stepEvents:    stepEvents,
		stepDuration:  stepDuration,
		tasksActive:   tasksActive,
		threadsActive: threadsActive,
	}
}

// IncDelivery records one per-recipient delivery attempt with its final status.
func (m *Metrics) IncDelivery(status string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}

// IncEscalation records an escalation fired for the given message priority.
func (m *Metrics) IncEscalation(priority string) {
	if m == nil || m.escalations == nil {
		return
	}
	m.escalations.WithLabelValues(priority).Inc()
}

// IncDecision records a decision that reached the given outcome.
func (m *Metrics) IncDecision(outcome string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

// IncStepEvent records a step transition into the given status.
func (m *Metrics) IncStepEvent(status string) {
	if m == nil || m.stepEvents == nil {
		return
	}
	m.stepEvents.WithLabelValues(status).Inc()
}

// ObserveStepDuration records how long a step of the given kind ran.
func (m *Metrics) ObserveStepDuration(kind string, d time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncActiveTasks marks a task as executing.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as finished or cancelled.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}

// IncActiveThreads marks a conversation thread as live.
func (m *Metrics) IncActiveThreads() {
	if m == nil || m.threadsActive == nil {
		return
	}
	m.threadsActive.Inc()
}

// DecActiveThreads marks a conversation thread as archived.
func (m *Metrics) DecActiveThreads() {
	if m == nil || m.threadsActive == nil {
		return
	}
	m.threadsActive.Dec()
}
