package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Payment is one tender against an order. Several may settle the same order.
type Payment struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID  uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	Method    enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Amount    decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status    enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	CreatedAt time.Time           `gorm:"column:created_at"`
}
