package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox row describes.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateTable        OutboxAggregateType = "table"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateZReport      OutboxAggregateType = "z_report"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateTable,
	AggregateSubscription,
	AggregateZReport,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventTableOccupied             OutboxEventType = "table_occupied"
	EventTableReleased             OutboxEventType = "table_released"
	EventOrderPaid                 OutboxEventType = "order_paid"
	EventSubscriptionActivated     OutboxEventType = "subscription_activated"
	EventSubscriptionPaymentFailed OutboxEventType = "subscription_payment_failed"
	EventZReportGenerated          OutboxEventType = "z_report_generated"
)

var validEventTypes = []OutboxEventType{
	EventTableOccupied,
	EventTableReleased,
	EventOrderPaid,
	EventSubscriptionActivated,
	EventSubscriptionPaymentFailed,
	EventZReportGenerated,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
