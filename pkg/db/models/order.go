package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Order is never physically deleted; status only moves forward.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index"`
	OrderNumber  string            `gorm:"column:order_number;not null"`
	TableID      *uuid.UUID        `gorm:"column:table_id;type:uuid"`
	Type         enums.OrderType   `gorm:"column:type;type:order_type;not null"`
	Status       enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	TotalAmount  decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Discount     decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	FinalAmount  decimal.Decimal   `gorm:"column:final_amount;type:numeric(12,2);not null"`
	CustomerName *string           `gorm:"column:customer_name"`
	Notes        *string           `gorm:"column:notes"`
	CreatedByID  *uuid.UUID        `gorm:"column:created_by_id;type:uuid"`
	PaidAt       *time.Time        `gorm:"column:paid_at"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Position  int             `gorm:"column:position;not null;default:0"`
}
