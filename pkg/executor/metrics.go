package executor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for one execution context.
type Metrics struct {
	Posted     prometheus.Counter
	Executed   prometheus.Counter
	Dropped    prometheus.Counter
	Panics     prometheus.Counter
	QueueDepth prometheus.Gauge
	Workers    prometheus.Gauge
}

// NewMetrics creates the executor collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Posted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "posted_total",
			Help:      "Work items accepted by the execution context.",
		}),
		Executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "executed_total",
			Help:      "Work items that ran to completion.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "dropped_total",
			Help:      "Work items discarded because the context was stopped.",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "panics_total",
			Help:      "Work items that panicked.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "queue_depth",
			Help:      "Work items waiting in the queue.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ctlbridge",
			Subsystem: "executor",
			Name:      "workers",
			Help:      "Running drain loops.",
		}),
	}
	reg.MustRegister(m.Posted, m.Executed, m.Dropped, m.Panics, m.QueueDepth, m.Workers)
	return m
}
