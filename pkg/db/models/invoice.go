package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Invoice rows are append-only.
type Invoice struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	PaymentID      *uuid.UUID          `gorm:"column:payment_id;type:uuid"`
	InvoiceNumber  string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	Status         enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	Subtotal       decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax            decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Total          decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Currency       string              `gorm:"column:currency;not null"`
	PeriodStart    time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd      time.Time           `gorm:"column:period_end;not null"`
	Description    string              `gorm:"column:description"`
	PaidAt         *time.Time          `gorm:"column:paid_at"`
	CreatedAt      time.Time           `gorm:"column:created_at"`
}
