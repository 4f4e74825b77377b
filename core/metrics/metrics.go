// Package metrics exposes Prometheus counters for registry operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry's collectors.
type Metrics struct {
	Instructions    *prometheus.CounterVec
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aidledger",
			Name:      "instructions_total",
			Help:      "Processed instructions by name and result.",
		}, []string{"instruction", "result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aidledger",
			Name:      "events_published_total",
			Help:      "BatchSubmitted events handed to subscribers.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aidledger",
			Name:      "events_dropped_total",
			Help:      "Notifications dropped because a subscriber was too slow.",
		}),
	}
	for _, c := range []prometheus.Collector{m.Instructions, m.EventsPublished, m.EventsDropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordInstruction counts one instruction outcome. result is "ok" or an
// error name such as "Unauthorized".
func (m *Metrics) RecordInstruction(instruction, result string) {
	if m == nil {
		return
	}
	m.Instructions.WithLabelValues(instruction, result).Inc()
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.EventsPublished.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
