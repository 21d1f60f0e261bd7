// Package metrics exports slot dispatch counters to Prometheus.
//
// A Collector is an engine.Observer; attach it with engine.WithObserver
// and register it once:
//
//	m := metrics.NewCollector()
//	m.MustRegister(prometheus.DefaultRegisterer)
//	c, _ := engine.New(engine.WithObserver(m))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/wires/internal/engine"
)

const namespace = "wires"

// Collector counts dispatches per slot.
type Collector struct {
	dispatches    *prometheus.CounterVec
	calls         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	shortCircuits *prometheus.CounterVec
	rejected      *prometheus.CounterVec
}

// NewCollector creates a Collector with unregistered counters.
func NewCollector() *Collector {
	return &Collector{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Count of slot invocations, including rejected ones.",
			},
			[]string{"slot"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_calls_total",
				Help:      "Count of handler calls made by slot invocations.",
			},
			[]string{"slot"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Count of handler calls that returned an error or panicked.",
			},
			[]string{"slot", "kind"},
		),
		shortCircuits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "short_circuits_total",
				Help:      "Count of invocations stopped early by a handler failure.",
			},
			[]string{"slot"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_dispatches_total",
				Help:      "Count of invocations refused for insufficient registrations.",
			},
			[]string{"slot"},
		),
	}
}

// Register adds every counter to r.
func (m *Collector) Register(r prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (m *Collector) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.collectors()...)
}

func (m *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.dispatches, m.calls, m.failures, m.shortCircuits, m.rejected}
}

// Dispatched implements engine.Observer.
func (m *Collector) Dispatched(d engine.Dispatch) {
	m.dispatches.WithLabelValues(d.Slot).Inc()
	if d.Rejected {
		m.rejected.WithLabelValues(d.Slot).Inc()
		return
	}
	m.calls.WithLabelValues(d.Slot).Add(float64(len(d.Calls)))
	for _, c := range d.Calls {
		if f := c.Record.Failure; f != nil {
			m.failures.WithLabelValues(d.Slot, string(f.Kind)).Inc()
		}
	}
	if d.ShortCircuited {
		m.shortCircuits.WithLabelValues(d.Slot).Inc()
	}
}
