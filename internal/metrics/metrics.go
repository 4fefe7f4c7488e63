// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Commands        *prometheus.CounterVec
	Processed       *prometheus.CounterVec
	StepLatency     *prometheus.HistogramVec
	Announcements   *prometheus.CounterVec
	WaiterTimeouts  prometheus.Counter
	ResumeTokenSeq  *prometheus.GaugeVec
	QueueRedelivery prometheus.Counter
}

var singleton = sync.OnceValue(func() *Metrics {
	return &Metrics{
		Commands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "commands_total",
			Help:      "Commands handled, by entity type, command and result.",
		}, []string{"entity_type", "command", "result"}),
		Processed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "pipeline",
			Name:      "processed_total",
			Help:      "Propagation steps run, by source, entity type and result.",
		}, []string{"source", "entity_type", "result"}),
		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "identity",
			Subsystem: "pipeline",
			Name:      "step_seconds",
			Help:      "Latency of normalize, materialize and announce.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"entity_type"}),
		Announcements: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "pipeline",
			Name:      "announcements_total",
			Help:      "Command-processed announcements, by result.",
		}, []string{"result"}),
		WaiterTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "waiter",
			Name:      "timeouts_total",
			Help:      "Completion waits that timed out.",
		}),
		ResumeTokenSeq: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "identity",
			Subsystem: "changefeed",
			Name:      "resume_seq",
			Help:      "Last change-feed position processed, by stream.",
		}, []string{"stream"}),
		QueueRedelivery: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "queue",
			Name:      "redeliveries_total",
			Help:      "Queue messages scheduled for redelivery after a failed step.",
		}),
	}
})

// Get returns the process-wide collectors.
func Get() *Metrics { return singleton() }
