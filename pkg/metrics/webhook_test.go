package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("paytr", WebhookOutcomeUnknownID)
	m.Observe("paytr", WebhookOutcomeUnknownID)
	m.Observe("paytr", WebhookOutcomeOK)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "kds_webhook_deliveries_total", "outcome", WebhookOutcomeUnknownID); err != nil {
		t.Fatalf("fetch unknown id: %v", err)
	} else if got != 2 {
		t.Fatalf("expected unknown_id=2, got %f", got)
	}
}

func TestReportMetricsDeliveryResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReportMetrics(reg)
	m.IncGenerated("scheduled")
	m.ObserveDelivery(false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "kds_z_report_deliveries_total", "result", "failed"); err != nil {
		t.Fatalf("fetch delivery: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "kds_z_reports_generated_total", "trigger", "scheduled"); err != nil {
		t.Fatalf("fetch generated: %v", err)
	} else if got != 1 {
		t.Fatalf("expected scheduled=1, got %f", got)
	}
}

func TestRelayMetricsCountsRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.Observe("order_paid", RelayOutcomePublished)
	m.Observe("order_paid", RelayOutcomeDead)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "kds_outbox_rows_total", "outcome", RelayOutcomeDead); err != nil {
		t.Fatalf("fetch dead: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dead=1, got %f", got)
	}

	var nilMetrics *RelayMetrics
	nilMetrics.Observe("order_paid", RelayOutcomeRetry)
}

func TestEmptyLabelsRecordedAsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRelayMetrics(reg).Observe("", RelayOutcomeRetry)
	NewWebhookMetrics(reg).Observe("", WebhookOutcomeOK)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "kds_outbox_rows_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected event_type=unknown once, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "kds_webhook_deliveries_total", "provider", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected provider=unknown once, got %f (%v)", got, err)
	}
}
