package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Tenant is a restaurant account. Only the fields the billing and reporting
// flows read are mapped.
type Tenant struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                  string             `gorm:"column:name;not null"`
	Status                enums.TenantStatus `gorm:"column:status;type:tenant_status;not null;default:'ACTIVE'"`
	CurrentPlanID         *uuid.UUID         `gorm:"column:current_plan_id;type:uuid"`
	Currency              string             `gorm:"column:currency;not null;default:'TRY'"`
	Timezone              string             `gorm:"column:timezone;not null;default:'UTC'"`
	ClosingTime           *string            `gorm:"column:closing_time"`
	ReportEmailEnabled    bool               `gorm:"column:report_email_enabled;not null;default:false"`
	ReportEmailRecipients pq.StringArray     `gorm:"column:report_email_recipients;type:text[]"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
