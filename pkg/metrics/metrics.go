// Package metrics exposes pipeline counters to Prometheus by consuming the
// event bus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zen-systems/stagegate/pkg/event"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	attempts  *prometheus.CounterVec
	tasks     *prometheus.CounterVec
	finalized prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagegate",
			Name:      "stage_attempts_total",
			Help:      "Stage attempts by stage name and gate outcome.",
		}, []string{"stage", "outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagegate",
			Name:      "tasks_total",
			Help:      "Tasks reaching a terminal status, by outcome.",
		}, []string{"outcome"}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagegate",
			Name:      "tasks_finalized_total",
			Help:      "Finalize events emitted for completed tasks.",
		}),
	}
	reg.MustRegister(m.attempts, m.tasks, m.finalized)
	return m
}

// Attach subscribes the collectors to the bus and returns an unsubscribe
// function.
func (m *Metrics) Attach(bus *event.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(event.TypeAttemptRecorded, func(ev event.Event) {
			m.attempts.WithLabelValues(ev.Stage, ev.Outcome).Inc()
		}),
		bus.Subscribe(event.TypeTaskCompleted, func(event.Event) {
			m.tasks.WithLabelValues("completed").Inc()
		}),
		bus.Subscribe(event.TypeTaskAborted, func(ev event.Event) {
			m.tasks.WithLabelValues("aborted_" + ev.Outcome).Inc()
		}),
		bus.Subscribe(event.TypeTaskFinalized, func(event.Event) {
			m.finalized.Inc()
		}),
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
