package global

import "github.com/prometheus/client_golang/prometheus"

// Metrics registers the Prometheus collectors GlobalState pushes into at
// the same points it mutates its own counters, per spec.md §4.9: a pure
// observer of state this package already owns, never a second source of
// truth for it.
type Metrics struct {
	CollectionAttempts prometheus.Counter
	EmergencyCycles    prometheus.Counter
	AllocationBytes    prometheus.Counter
}

// NewMetrics registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CollectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcplan",
			Subsystem: "global",
			Name:      "collection_attempts_total",
			Help:      "Cumulative number of GC attempts, including retries within a single cycle.",
		}),
		EmergencyCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcplan",
			Subsystem: "global",
			Name:      "emergency_collections_total",
			Help:      "Cumulative number of cycles escalated to an emergency (exhaustive, non-growing) collection.",
		}),
		AllocationBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gcplan",
			Subsystem: "global",
			Name:      "allocation_bytes_total",
			Help:      "Cumulative bytes allocated, tracked for stress-test GC triggers.",
		}),
	}
	reg.MustRegister(m.CollectionAttempts, m.EmergencyCycles, m.AllocationBytes)
	return m
}

// Observe pushes the outcome of one DecideCollectionKind call into the
// registered collectors.
func (m *Metrics) Observe(emergency bool) {
	m.CollectionAttempts.Inc()
	if emergency {
		m.EmergencyCycles.Inc()
	}
}

// ObserveAllocation pushes size into the allocation-bytes counter,
// mirroring IncreaseAllocationBytesBy.
func (m *Metrics) ObserveAllocation(size uint64) {
	m.AllocationBytes.Add(float64(size))
}
