package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Subscription persists a tenant's plan entitlement and billing period.
type Subscription struct {
	ID                    uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID              uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null;index"`
	PlanID                uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status                enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null"`
	BillingCycle          enums.BillingCycle       `gorm:"column:billing_cycle;type:billing_cycle;not null"`
	PaymentProvider       enums.PaymentProvider    `gorm:"column:payment_provider;type:payment_provider;not null"`
	Amount                decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency              string                   `gorm:"column:currency;not null"`
	CurrentPeriodStart    time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd      time.Time                `gorm:"column:current_period_end;not null"`
	IsTrialPeriod         bool                     `gorm:"column:is_trial_period;not null;default:false"`
	TrialEnd              *time.Time               `gorm:"column:trial_end"`
	CancelAtPeriodEnd     bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CancelledAt           *time.Time               `gorm:"column:cancelled_at"`
	RenewalReminderSentAt *time.Time               `gorm:"column:renewal_reminder_sent_at"`
	GracePeriodEndsAt     *time.Time               `gorm:"column:grace_period_ends_at"`
	CreatedAt             time.Time                `gorm:"column:created_at"`
	UpdatedAt             time.Time                `gorm:"column:updated_at"`
}
