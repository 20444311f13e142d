package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/outbox/payloads"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const (
	paymentLockTTL  = 10 * time.Second
	paymentLockWait = 5 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the order payment ledger.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error)
	ListPayments(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.Payment, error)
}

// Option customizes the service.
type Option func(*service)

// WithDistributedLock serializes payments for one order across processes.
// keyFn maps (scope, id) to the lock key.
func WithDistributedLock(locker pkgredis.Locker, keyFn func(scope, id string) string) Option {
	return func(s *service) {
		s.locker = locker
		s.lockKey = keyFn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	locks   *keyedMutex
	locker  pkgredis.Locker
	lockKey func(scope, id string) string
	now     func() time.Time
}

// NewService builds the ledger with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.locker != nil && svc.lockKey == nil {
		return nil, fmt.Errorf("lock key builder required with distributed lock")
	}
	return svc, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.Discount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		OrderNumber:  orderNumber(now),
		TableID:      input.TableID,
		Type:         input.Type,
		Status:       enums.OrderStatusPending,
		Discount:     input.Discount,
		CustomerName: input.CustomerName,
		Notes:        input.Notes,
		CreatedByID:  input.ActorUserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	total := decimal.Zero
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product id required", i))
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unit price cannot be negative", i))
		}
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  subtotal,
			Position:  i,
		})
	}
	if input.Discount.GreaterThan(total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}
	order.TotalAmount = total
	order.FinalAmount = total.Sub(input.Discount)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if order.TableID == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableOccupied,
			AggregateType: enums.AggregateTable,
			AggregateID:   *order.TableID,
			Actor:         buildActor(order.TenantID, input.ActorUserID, ""),
			Data: payloads.TableOccupiedEvent{
				TableID:  *order.TableID,
				OrderID:  order.ID,
				TenantID: order.TenantID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error) {
	params = params.Normalize()
	orders, total, err := s.repo.ListOrders(ctx, tenantID, filters, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.NewPage(orders, total, params), nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	unlock := s.locks.Lock(input.OrderID)
	defer unlock()

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.TenantID, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if !order.Status.IsTerminal() && order.Status == input.Status {
			updated = order
			return nil
		}
		if err := checkRequestedTransition(order.Status, input.Status); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.UpdateOrderStatus(ctx, order.ID, input.Status, nil, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = input.Status
		order.UpdatedAt = now
		updated = order

		if input.Status == enums.OrderStatusCancelled {
			return s.emitTableReleased(ctx, tx, order, buildActor(order.TenantID, input.ActorUserID, input.ActorRole))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}

	unlock := s.locks.Lock(input.OrderID)
	defer unlock()

	release, err := s.obtainDistributedLock(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *PaymentResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.TenantID, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if order.Status == enums.OrderStatusCancelled {
			return invalidTransition(order.Status, enums.OrderStatusPaid, "cancelled orders cannot take payments")
		}

		completed, err := repo.CompletedPayments(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
		}
		paid := sumAmounts(completed)
		newTotal := paid.Add(input.Amount)
		if newTotal.GreaterThan(order.FinalAmount) {
			return pkgerrors.New(pkgerrors.CodeOverpayment, "payment exceeds remaining balance").WithDetails(map[string]string{
				"finalAmount": order.FinalAmount.StringFixed(2),
				"paid":        paid.StringFixed(2),
				"remaining":   order.FinalAmount.Sub(paid).StringFixed(2),
			})
		}

		now := s.now().UTC()
		payment := models.Payment{
			ID:        uuid.New(),
			OrderID:   order.ID,
			TenantID:  order.TenantID,
			Method:    input.Method,
			Amount:    input.Amount,
			Status:    enums.PaymentStatusCompleted,
			CreatedAt: now,
		}
		if err := repo.CreatePayment(ctx, &payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		result = &PaymentResult{
			Payment:     payment,
			OrderStatus: order.Status,
			PaidTotal:   newTotal,
			Remaining:   order.FinalAmount.Sub(newTotal),
		}
		if !newTotal.Equal(order.FinalAmount) {
			return nil
		}

		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusPaid, &now, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle order")
		}
		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		result.OrderStatus = enums.OrderStatusPaid

		actor := buildActor(order.TenantID, input.ActorUserID, input.ActorRole)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderPaidEvent{
				OrderID:      order.ID,
				TenantID:     order.TenantID,
				FinalAmount:  order.FinalAmount,
				PaymentCount: len(completed) + 1,
				PaidAt:       now,
			},
		}); err != nil {
			return err
		}
		return s.emitTableReleased(ctx, tx, order, actor)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil && result.OrderStatus == enums.OrderStatusPaid {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":  input.OrderID.String(),
			"tenant_id": input.TenantID.String(),
		})
		s.logg.Info(logCtx, "order settled")
	}
	return result, nil
}

func (s *service) ListPayments(ctx context.Context, tenantID, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.repo.FindOrder(ctx, tenantID, orderID); err != nil {
		return nil, mapLoadError(err)
	}
	payments, err := s.repo.ListPayments(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return payments, nil
}

func (s *service) obtainDistributedLock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Obtain(ctx, s.lockKey("order-payment", orderID.String()), paymentLockTTL, paymentLockWait)
	if err != nil {
		if errors.Is(err, pkgredis.ErrLockNotObtained) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "another payment for this order is in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID.String()), "release order lock: "+err.Error())
		}
	}, nil
}

func (s *service) emitTableReleased(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) error {
	if order.TableID == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTableReleased,
		AggregateType: enums.AggregateTable,
		AggregateID:   *order.TableID,
		Actor:         actor,
		Data: payloads.TableReleasedEvent{
			TableID:     *order.TableID,
			OrderID:     order.ID,
			TenantID:    order.TenantID,
			OrderStatus: order.Status,
		},
	})
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func sumAmounts(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

func orderNumber(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), strings.ToUpper(suffix))
}

func buildActor(tenantID uuid.UUID, userID *uuid.UUID, role string) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	}
}
