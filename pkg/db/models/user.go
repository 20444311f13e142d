package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index"`
	Email     string         `gorm:"column:email;not null"`
	Name      string         `gorm:"column:name;not null"`
	Role      enums.UserRole `gorm:"column:role;type:user_role;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}
