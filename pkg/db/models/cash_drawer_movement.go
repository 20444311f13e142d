package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

type CashDrawerMovement struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	Type      enums.CashMovementType `gorm:"column:type;type:cash_movement_type;not null"`
	Amount    decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason    *string                `gorm:"column:reason"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	CreatedAt time.Time              `gorm:"column:created_at"`

	User *User `gorm:"foreignKey:UserID;references:ID"`
}
