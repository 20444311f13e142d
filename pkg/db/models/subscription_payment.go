package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// SubscriptionPayment is keyed by the gateway correlation id and settled once
// by the matching callback. PlanID and BillingCycle record what the payment
// buys; the subscription takes them over only when the payment succeeds.
type SubscriptionPayment struct {
	ID              uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID  uuid.UUID                       `gorm:"column:subscription_id;type:uuid;not null;index"`
	MerchantOrderID string                          `gorm:"column:merchant_order_id;not null;uniqueIndex"`
	PlanID          uuid.UUID                       `gorm:"column:plan_id;type:uuid;not null"`
	BillingCycle    enums.BillingCycle              `gorm:"column:billing_cycle;type:billing_cycle;not null"`
	PaymentProvider enums.PaymentProvider           `gorm:"column:payment_provider;type:payment_provider;not null"`
	PaymentLink     *string                         `gorm:"column:payment_link"`
	Amount          decimal.Decimal                 `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string                          `gorm:"column:currency;not null"`
	Status          enums.SubscriptionPaymentStatus `gorm:"column:status;type:subscription_payment_status;not null"`
	PaidAt          *time.Time                      `gorm:"column:paid_at"`
	FailureCode     *string                         `gorm:"column:failure_code"`
	FailureMessage  *string                         `gorm:"column:failure_message"`
	RetryCount      int                             `gorm:"column:retry_count;not null;default:0"`
	CreatedAt       time.Time                       `gorm:"column:created_at"`
	UpdatedAt       time.Time                       `gorm:"column:updated_at"`
}
