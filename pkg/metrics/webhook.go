package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes recorded per delivery.
const (
	WebhookOutcomeOK            = "ok"
	WebhookOutcomeFailSignature = "fail_signature"
	WebhookOutcomeUnknownID     = "unknown_id"
	WebhookOutcomeReplay        = "replay"
	WebhookOutcomeError         = "error"
)

// WebhookMetrics counts gateway callbacks by provider and outcome.
type WebhookMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Payment gateway callbacks grouped by outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(outcomes)
	return &WebhookMetrics{outcomes: outcomes}
}

func (w *WebhookMetrics) Observe(provider, outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(label(provider), label(outcome)).Inc()
}
