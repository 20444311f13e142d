package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// Repository handles plan, subscription, subscription payment and invoice persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindReusableSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	CreatePayment(ctx context.Context, payment *models.SubscriptionPayment) error
	FindPaymentByMerchantOIDForUpdate(ctx context.Context, merchantOID string) (*models.SubscriptionPayment, error)
	UpdatePayment(ctx context.Context, payment *models.SubscriptionPayment) error
	ListPaymentsByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.SubscriptionPayment, error)
	CountInvoicesByPrefix(ctx context.Context, prefix string) (int64, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	ListInvoicesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Invoice, error)
	ListInvoicesByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Invoice, error)
}

// ReusableSubscriptionStatuses are reused by a new payment intent instead of
// opening another subscription.
var ReusableSubscriptionStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusActive,
	enums.SubscriptionStatusTrialing,
	enums.SubscriptionStatusPending,
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindReusableSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND status IN ?", tenantID, ReusableSubscriptionStatuses).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end < ?", enums.SubscriptionStatusActive, now.UTC()).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.SubscriptionPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentByMerchantOIDForUpdate(ctx context.Context, merchantOID string) (*models.SubscriptionPayment, error) {
	var payment models.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_order_id = ?", merchantOID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.SubscriptionPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) ListPaymentsByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.SubscriptionPayment, error) {
	if limit <= 0 {
		limit = 50
	}
	var payments []models.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.id = subscription_payments.subscription_id").
		Where("subscriptions.tenant_id = ?", tenantID).
		Order("subscription_payments.created_at DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) CountInvoicesByPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Count(&count).Error
	return count, err
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) ListInvoicesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ListInvoicesByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.id = invoices.subscription_id").
		Where("subscriptions.tenant_id = ?", tenantID).
		Order("invoices.created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
