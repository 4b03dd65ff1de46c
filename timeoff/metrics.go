package timeoff

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the lifecycle engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	conflicts      prometheus.Counter
	notifyFailures *prometheus.CounterVec
	timersArmed    prometheus.Gauge
}

// NewMetrics registers the engine instruments on reg. A nil reg builds
// unregistered instruments, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_applications_submitted_total",
			Help: "Leave applications accepted into Pending, by category.",
		}, []string{"category"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_transitions_total",
			Help: "Committed lifecycle transitions, by resulting status.",
		}, []string{"status"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "leave_transition_conflicts_total",
			Help: "Transitions skipped because the application was already resolved.",
		}),
		notifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_notifications_failed_total",
			Help: "Notifications that could not be delivered, by target.",
		}, []string{"target"}),
		timersArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "leave_timers_armed",
			Help: "Auto-approval timers currently armed.",
		}),
	}
}

func (m *Metrics) Submitted(c Category) {
	if m != nil {
		m.submitted.WithLabelValues(string(c)).Inc()
	}
}

func (m *Metrics) Transition(s Status) {
	if m != nil {
		m.transitions.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) NotifyFailed(target string) {
	if m != nil {
		m.notifyFailures.WithLabelValues(target).Inc()
	}
}

func (m *Metrics) TimersArmed(n int) {
	if m != nil {
		m.timersArmed.Set(float64(n))
	}
}
