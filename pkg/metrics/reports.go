package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReportMetrics tracks z-report generation and best-effort delivery.
type ReportMetrics struct {
	generated *prometheus.CounterVec
	delivery  *prometheus.CounterVec
}

func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	if reg == nil {
		return &ReportMetrics{}
	}
	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "z_reports_generated_total",
		Help:      "Z-reports persisted, by trigger.",
	}, []string{"trigger"})
	delivery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "z_report_deliveries_total",
		Help:      "Z-report delivery attempts, by result.",
	}, []string{"result"})
	reg.MustRegister(generated, delivery)
	return &ReportMetrics{generated: generated, delivery: delivery}
}

func (r *ReportMetrics) IncGenerated(trigger string) {
	if r == nil || r.generated == nil {
		return
	}
	r.generated.WithLabelValues(label(trigger)).Inc()
}

// ObserveDelivery records a send attempt; sent=false covers render and transport failures.
func (r *ReportMetrics) ObserveDelivery(sent bool) {
	if r == nil || r.delivery == nil {
		return
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	r.delivery.WithLabelValues(result).Inc()
}
