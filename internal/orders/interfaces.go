package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
)

// Repository defines persistence operations for orders and their payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, paidAt *time.Time, at time.Time) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	CompletedPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}
