package zreports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
)

// Repository persists reports and reads the day activity they summarize.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, report *models.ZReport) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error)
	FindByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (*models.ZReport, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.ZReport, int64, error)
	Finalize(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, sentAt *time.Time, deliveryErr *string, at time.Time) error

	ListOrdersInWindow(ctx context.Context, tenantID uuid.UUID, status enums.OrderStatus, from, to time.Time) ([]models.Order, error)
	ListCompletedPayments(ctx context.Context, orderIDs []uuid.UUID) ([]models.Payment, error)
	ListCashMovements(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]models.CashDrawerMovement, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, report *models.ZReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error) {
	var report models.ZReport
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) FindByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (*models.ZReport, error) {
	var report models.ZReport
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND report_date = ?", tenantID, date.UTC()).
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.ZReport, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&models.ZReport{}).Where("tenant_id = ?", tenantID)
	if filters.StartDate != nil {
		query = query.Where("report_date >= ?", filters.StartDate.UTC())
	}
	if filters.EndDate != nil {
		query = query.Where("report_date <= ?", filters.EndDate.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []models.ZReport
	err := query.
		Order("report_date DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// Finalize flips the flag only while it is unset and reports whether it did.
func (r *repository) Finalize(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ZReport{}).
		Where("id = ? AND is_finalized = ?", id, false).
		Updates(map[string]any{
			"is_finalized": true,
			"finalized_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordDelivery stores the outcome of a send. A nil sentAt marks a failure
// described by deliveryErr.
func (r *repository) RecordDelivery(ctx context.Context, id uuid.UUID, sentAt *time.Time, deliveryErr *string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ZReport{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"email_sent":    sentAt != nil,
			"email_sent_at": sentAt,
			"email_error":   deliveryErr,
			"updated_at":    at,
		}).Error
}

func (r *repository) ListOrdersInWindow(ctx context.Context, tenantID uuid.UUID, status enums.OrderStatus, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("tenant_id = ? AND status = ? AND created_at >= ? AND created_at < ?", tenantID, status, from.UTC(), to.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListCompletedPayments(ctx context.Context, orderIDs []uuid.UUID) ([]models.Payment, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id IN ? AND status = ?", orderIDs, enums.PaymentStatusCompleted).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) ListCashMovements(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]models.CashDrawerMovement, error) {
	var movements []models.CashDrawerMovement
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from.UTC(), to.UTC()).
		Order("created_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
