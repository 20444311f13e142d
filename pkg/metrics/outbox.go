package metrics

import "github.com/prometheus/client_golang/prometheus"

// Relay outcomes per outbox row.
const (
	RelayOutcomePublished = "published"
	RelayOutcomeRetry     = "retry"
	RelayOutcomeDead      = "dead"
)

// RelayMetrics counts outbox rows by event type and outcome.
type RelayMetrics struct {
	rows *prometheus.CounterVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_rows_total",
		Help:      "Outbox rows handled by the relay grouped by outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(rows)
	return &RelayMetrics{rows: rows}
}

func (r *RelayMetrics) Observe(eventType, outcome string) {
	if r == nil || r.rows == nil {
		return
	}
	r.rows.WithLabelValues(label(eventType), outcome).Inc()
}
