package tenants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Repository handles tenant and staff lookups shared by billing and reporting.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to tenant operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a tenant by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByIDWithTx loads a tenant using the provided transaction.
func (r *Repository) FindByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Tenant, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var tenant models.Tenant
	if err := tx.First(&tenant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// UpdateCurrentPlanWithTx points the tenant at planID.
func (r *Repository) UpdateCurrentPlanWithTx(tx *gorm.DB, tenantID, planID uuid.UUID, at time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	res := tx.Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		UpdateColumns(map[string]any{
			"current_plan_id": planID,
			"updated_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListReportEnabled returns active tenants with scheduled reports switched on
// and a closing time configured. Recipient lists are not filtered here.
func (r *Repository) ListReportEnabled(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.TenantStatusActive).
		Where("report_email_enabled = ?", true).
		Where("closing_time IS NOT NULL AND closing_time <> ''").
		Order("created_at ASC").
		Order("id ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// FindAdmin returns the tenant's earliest ADMIN user.
func (r *Repository) FindAdmin(ctx context.Context, tenantID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, enums.UserRoleAdmin).
		Order("created_at ASC").
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUser loads a user scoped to the tenant.
func (r *Repository) FindUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ? AND tenant_id = ?", userID, tenantID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
