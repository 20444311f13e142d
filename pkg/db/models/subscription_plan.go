package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionPlan struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null;uniqueIndex"`
	DisplayName  string          `gorm:"column:display_name;not null"`
	MonthlyPrice decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null"`
	YearlyPrice  decimal.Decimal `gorm:"column:yearly_price;type:numeric(12,2);not null"`
	Currency     string          `gorm:"column:currency;not null;default:'TRY'"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
