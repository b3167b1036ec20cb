package chainindexer

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters the indexer publishes, grounded on the
// registerer/gatherer pattern under metrics/prometheus in the inherited tree.
type Metrics struct {
	EventsHandled  *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	Quarantined    prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopr",
			Subsystem: "indexer",
			Name:      "events_handled_total",
			Help:      "Number of chain events successfully applied, by contract and event name.",
		}, []string{"contract", "event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hopr",
			Subsystem: "indexer",
			Name:      "events_dropped_total",
			Help:      "Number of chain events dropped (malformed or unknown contract), by reason.",
		}, []string{"reason"}),
		Quarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hopr",
			Subsystem: "indexer",
			Name:      "channels_quarantined_total",
			Help:      "Number of channel rows moved to quarantine due to inconsistent chain events.",
		}),
	}
	reg.MustRegister(m.EventsHandled, m.EventsDropped, m.Quarantined)
	return m
}
