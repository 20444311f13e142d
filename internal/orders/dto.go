package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// CreateOrderInput carries a new order and its lines.
type CreateOrderInput struct {
	TenantID     uuid.UUID
	ActorUserID  *uuid.UUID
	TableID      *uuid.UUID
	Type         enums.OrderType
	Discount     decimal.Decimal
	CustomerName *string
	Notes        *string
	Items        []OrderItemInput
}

type OrderItemInput struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// UpdateStatusInput requests an explicit lifecycle change.
type UpdateStatusInput struct {
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	ActorUserID *uuid.UUID
	ActorRole   string
}

// RecordPaymentInput tenders one payment against an order.
type RecordPaymentInput struct {
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	Method      enums.PaymentMethod
	Amount      decimal.Decimal
	ActorUserID *uuid.UUID
	ActorRole   string
}

// PaymentResult is the created payment plus the settlement state it left behind.
type PaymentResult struct {
	Payment     models.Payment    `json:"payment"`
	OrderStatus enums.OrderStatus `json:"orderStatus"`
	PaidTotal   decimal.Decimal   `json:"paidTotal"`
	Remaining   decimal.Decimal   `json:"remaining"`
}

// ListFilters narrows the order list.
type ListFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}
