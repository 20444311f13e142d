package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// TableOccupiedEvent is emitted in the order-creation transaction when the
// order is seated at a table.
type TableOccupiedEvent struct {
	TableID  uuid.UUID `json:"table_id"`
	OrderID  uuid.UUID `json:"order_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// TableReleasedEvent frees the table once its order is settled or cancelled.
type TableReleasedEvent struct {
	TableID     uuid.UUID         `json:"table_id"`
	OrderID     uuid.UUID         `json:"order_id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	OrderStatus enums.OrderStatus `json:"order_status"`
}

// OrderPaidEvent is emitted when completed payments exactly cover the order.
type OrderPaidEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	FinalAmount  decimal.Decimal `json:"final_amount"`
	PaymentCount int             `json:"payment_count"`
	PaidAt       time.Time       `json:"paid_at"`
}

type SubscriptionActivatedEvent struct {
	SubscriptionID   uuid.UUID          `json:"subscription_id"`
	TenantID         uuid.UUID          `json:"tenant_id"`
	PlanID           uuid.UUID          `json:"plan_id"`
	BillingCycle     enums.BillingCycle `json:"billing_cycle"`
	CurrentPeriodEnd time.Time          `json:"current_period_end"`
	InvoiceID        uuid.UUID          `json:"invoice_id"`
	MerchantOrderID  string             `json:"merchant_order_id"`
}

type SubscriptionPaymentFailedEvent struct {
	SubscriptionID  uuid.UUID `json:"subscription_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	MerchantOrderID string    `json:"merchant_order_id"`
	FailureCode     string    `json:"failure_code,omitempty"`
	FailureMessage  string    `json:"failure_message,omitempty"`
	RetryCount      int       `json:"retry_count"`
}

// ZReportGeneratedEvent announces a persisted end-of-day report.
type ZReportGeneratedEvent struct {
	ReportID       uuid.UUID       `json:"report_id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	ReportNumber   string          `json:"report_number"`
	ReportDate     string          `json:"report_date"`
	NetSales       decimal.Decimal `json:"net_sales"`
	CashDifference decimal.Decimal `json:"cash_difference"`
}
