package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the engine's Prometheus collectors.
type Metrics struct {
	Scans           *prometheus.CounterVec
	Overrides       *prometheus.CounterVec
	SessionsOpened  prometheus.Counter
	ActiveSessions  prometheus.Gauge
	PersistFailures prometheus.Counter
	QueueFailures   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "scans_total",
			Help:      "Self-scans by outcome.",
		}, []string{"outcome"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "overrides_total",
			Help:      "Instructor overrides by resulting status.",
		}, []string{"status"}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "sessions_opened_total",
			Help:      "Attendance sessions opened.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartattend",
			Name:      "sessions_tracked",
			Help:      "Sessions currently held in memory, expired ones within retention included.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "persist_failures_total",
			Help:      "Snapshot saves that exhausted their retries.",
		}),
		QueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartattend",
			Name:      "queue_publish_failures_total",
			Help:      "Record events that could not be published.",
		}),
	}
	reg.MustRegister(m.Scans, m.Overrides, m.SessionsOpened, m.ActiveSessions, m.PersistFailures, m.QueueFailures)
	return m
}
